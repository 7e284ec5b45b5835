package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"pengystream/internal/config"
)

// Requirement defines an external binary PengyStream relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Requirements lists the binaries named in the configuration. The GPU
// sensor is optional: without it admission only considers CPU load.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.Tools.FFmpeg, Description: "Transcodes video and audio streams"},
		{Name: "FFprobe", Command: cfg.Tools.FFprobe, Description: "Inspects codecs and resolution"},
		{Name: "nvidia-smi", Command: cfg.Tools.NvidiaSMI, Description: "Reports GPU utilization for admission", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch resolved, err := exec.LookPath(cmd); {
		case cmd == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		default:
			status.Available = true
			if resolved != cmd {
				status.Detail = resolved
			}
		}
		results = append(results, status)
	}
	return results
}
