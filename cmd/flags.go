package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// Flags are registered in init(), so a lookup error is a programming bug and panics.

func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// requireOwner returns the trimmed --owner flag; every data command acts for one owner.
func requireOwner(cmd *cobra.Command) (string, error) {
	owner := strings.TrimSpace(mustGetString(cmd, "owner"))
	if owner == "" {
		return "", errors.New("--owner is required")
	}
	return owner, nil
}
