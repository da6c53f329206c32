// Package compiler turns canonical JSON rule documents into binary rule-set
// artifacts by invoking an external tool.
package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sw33tLie/ruleconv/internal/utils"
)

const DefaultBinary = "sing-box"

// Compiler converts the JSON document at jsonPath into a binary artifact at
// outPath.
type Compiler interface {
	Compile(ctx context.Context, jsonPath, outPath string) error
}

// SingBox runs `sing-box rule-set compile --output <out> <in>`.
type SingBox struct {
	Binary string
}

// NewSingBox returns a SingBox compiler. An empty binary means DefaultBinary
// resolved through PATH.
func NewSingBox(binary string) *SingBox {
	if binary == "" {
		binary = DefaultBinary
	}
	return &SingBox{Binary: binary}
}

// Args returns the argument list passed to the binary.
func (s *SingBox) Args(jsonPath, outPath string) []string {
	return []string{"rule-set", "compile", "--output", outPath, jsonPath}
}

// Compile implements Compiler.
func (s *SingBox) Compile(ctx context.Context, jsonPath, outPath string) error {
	args := s.Args(jsonPath, outPath)
	utils.Log.Debugf("Running %s %s", s.Binary, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, s.Binary, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", s.Binary, ctx.Err())
		}
		msg := strings.TrimSpace(out.String())
		if msg != "" {
			return fmt.Errorf("%s rule-set compile failed: %v: %s", s.Binary, err, msg)
		}
		return fmt.Errorf("%s rule-set compile failed: %v", s.Binary, err)
	}
	return nil
}

// Available reports whether the configured binary can be found.
func (s *SingBox) Available() error {
	if _, err := exec.LookPath(s.Binary); err != nil {
		return fmt.Errorf("compiler %q not found: %w", s.Binary, err)
	}
	return nil
}
