package webhook

import (
	"testing"
	"time"
)

func TestSign(t *testing.T) {
	payload := []byte(`{"eventType":"job.completed","eventId":"01J"}`)

	sig := Sign("whsec_test", 1736600000, payload)
	if len(sig) != 64 {
		t.Fatalf("signature length = %d, want 64", len(sig))
	}
	if sig != Sign("whsec_test", 1736600000, payload) {
		t.Error("signature is not deterministic")
	}
	if sig == Sign("whsec_test", 1736600001, payload) {
		t.Error("timestamp must change the signature")
	}
	if sig == Sign("whsec_other", 1736600000, payload) {
		t.Error("secret must change the signature")
	}
	if sig == Sign("whsec_test", 1736600000, []byte(`{}`)) {
		t.Error("payload must change the signature")
	}
}

func TestVerify(t *testing.T) {
	now := time.Unix(1736600000, 0)
	payload := []byte(`{"test":"data"}`)
	secret := "test_secret"

	tests := []struct {
		name      string
		signature string
		timestamp int64
		wantErr   error
	}{
		{"valid", Sign(secret, now.Unix(), payload), now.Unix(), nil},
		{"tampered", "deadbeef", now.Unix(), ErrInvalidSignature},
		{"too old", Sign(secret, now.Add(-10*time.Minute).Unix(), payload), now.Add(-10 * time.Minute).Unix(), ErrReplayWindowExceeded},
		{"too far ahead", Sign(secret, now.Add(10*time.Minute).Unix(), payload), now.Add(10 * time.Minute).Unix(), ErrReplayWindowExceeded},
		{"inside window", Sign(secret, now.Add(-4*time.Minute).Unix(), payload), now.Add(-4 * time.Minute).Unix(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(secret, tt.signature, tt.timestamp, payload, DefaultReplayWindow, now)
			if err != tt.wantErr {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret() error = %v", err)
	}
	b, _ := GenerateSecret()
	if len(a) != 64 {
		t.Errorf("secret length = %d, want 64", len(a))
	}
	if a == b {
		t.Error("secrets should be unique")
	}
}
