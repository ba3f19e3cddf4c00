package util

import (
	"fmt"
	"strings"
)

func ValidateGroupName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("group name must not be empty")
	}
	return nil
}

func ValidateCount(name string, n int) error {
	if n < 0 {
		return fmt.Errorf("%s must not be negative, got %d", name, n)
	}
	return nil
}
