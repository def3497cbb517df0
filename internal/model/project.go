package model

import "time"

// DefaultProjectName is the project created for every new team.
const DefaultProjectName = "Default"

// Project groups API keys and jobs inside a team.
type Project struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"teamId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Plan names a billing plan.
type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanPro        Plan = "PRO"
	PlanEnterprise Plan = "ENTERPRISE"
)

// FreeMonthlyCredits is the credit allowance granted on signup.
const FreeMonthlyCredits = 10000

// Subscription is the billing state of a team.
type Subscription struct {
	ID             string    `json:"id"`
	TeamID         string    `json:"teamId"`
	Plan           Plan      `json:"plan"`
	CreditsMonthly int       `json:"creditsMonthly"`
	CreatedAt      time.Time `json:"createdAt"`
}
