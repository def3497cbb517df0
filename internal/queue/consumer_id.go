package queue

import (
	"fmt"
	"os"
	"time"
)

// NewConsumerID creates a consumer name unique to this process and slot.
func NewConsumerID(queue string, slot int) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s-%d-%d-%d", host, queue, os.Getpid(), slot, time.Now().UnixNano())
}
