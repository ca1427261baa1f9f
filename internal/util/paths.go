package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands a leading "~", then $VAR and ${VAR} references, and
// cleans the result. Undefined variables expand to the empty string. An
// empty path stays empty.
//
//	~/models.yaml         -> /home/ada/models.yaml
//	$NODE4J_HOME/cfg.yaml -> /opt/node4j/cfg.yaml
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = home + path[1:]
	}

	return filepath.Clean(os.ExpandEnv(path)), nil
}
