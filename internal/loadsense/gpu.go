package loadsense

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const nvidiaQueryTimeout = 5 * time.Second

// NvidiaSampler queries nvidia-smi and reports the busiest GPU.
type NvidiaSampler struct {
	Binary string
}

// GPUPercent implements GPUSampler. A missing binary means no GPU.
func (n NvidiaSampler) GPUPercent(ctx context.Context) (float64, bool, error) {
	binary := strings.TrimSpace(n.Binary)
	if binary == "" {
		return 0, false, nil
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return 0, false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, nvidiaQueryTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, path, "--query-gpu=utilization.gpu", "--format=csv,noheader,nounits")
	output, err := cmd.Output()
	if err != nil {
		return 0, false, fmt.Errorf("nvidia-smi: %w", err)
	}
	percent, err := parseNvidiaUtilization(output)
	if err != nil {
		return 0, false, err
	}
	return percent, true, nil
}

// parseNvidiaUtilization reads one utilization value per line and returns
// the maximum.
func parseNvidiaUtilization(output []byte) (float64, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	found := false
	var highest float64
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(scanner.Text()), "%"))
		if line == "" {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil {
			return 0, fmt.Errorf("nvidia-smi: unexpected output %q", line)
		}
		if !found || value > highest {
			highest = value
		}
		found = true
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if !found {
		return 0, errors.New("nvidia-smi: no utilization reported")
	}
	return highest, nil
}
