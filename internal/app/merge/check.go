package merge

import (
	"os"
	"path/filepath"
	"strings"
)

// CheckResult represents the result of a fragment check.
type CheckResult struct {
	Accepted bool
	Code     string // e.g., "empty_path", "not_found", "unsupported_extension"
}

// Accept returns an accepted result.
func Accept() CheckResult {
	return CheckResult{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) CheckResult {
	return CheckResult{Accepted: false, Code: code}
}

// Check validates one fragment path before the engine runs.
type Check interface {
	// Name returns the check name.
	Name() string
	// Check inspects a single fragment.
	Check(path string) CheckResult
}

// CheckChain executes checks in sequence.
type CheckChain struct {
	checks []Check
}

// NewCheckChain creates a new check chain.
func NewCheckChain(checks ...Check) *CheckChain {
	return &CheckChain{checks: checks}
}

// Add adds a check to the chain.
func (c *CheckChain) Add(check Check) {
	c.checks = append(c.checks, check)
}

// Execute runs every check against every fragment in order.
// Returns the index of the first rejected fragment, or -1 if all were accepted.
func (c *CheckChain) Execute(fragments []string) (int, CheckResult) {
	for i, path := range fragments {
		for _, check := range c.checks {
			result := check.Check(path)
			if !result.Accepted {
				return i, result
			}
		}
	}
	return -1, Accept()
}

// Checks returns all checks in the chain.
func (c *CheckChain) Checks() []Check {
	return c.checks
}

// NonEmptyPathCheck rejects blank paths.
type NonEmptyPathCheck struct{}

func (NonEmptyPathCheck) Name() string { return "non_empty_path" }

func (NonEmptyPathCheck) Check(path string) CheckResult {
	if strings.TrimSpace(path) == "" {
		return Reject("empty_path")
	}
	return Accept()
}

// RegularFileCheck rejects paths that do not name an existing regular file.
type RegularFileCheck struct{}

func (RegularFileCheck) Name() string { return "regular_file" }

func (RegularFileCheck) Check(path string) CheckResult {
	info, err := os.Stat(path)
	if err != nil {
		return Reject("not_found")
	}
	if !info.Mode().IsRegular() {
		return Reject("not_regular_file")
	}
	return Accept()
}

// ExtensionCheck rejects files whose extension is not in the allowed set.
type ExtensionCheck struct {
	allowed map[string]bool
}

// NewExtensionCheck creates an extension check. Extensions are matched case-insensitively
// and may be given with or without the leading dot.
func NewExtensionCheck(extensions []string) *ExtensionCheck {
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}
	return &ExtensionCheck{allowed: allowed}
}

func (c *ExtensionCheck) Name() string { return "extension" }

func (c *ExtensionCheck) Check(path string) CheckResult {
	if len(c.allowed) == 0 {
		return Accept()
	}
	if !c.allowed[strings.ToLower(filepath.Ext(path))] {
		return Reject("unsupported_extension")
	}
	return Accept()
}

// WithinRootCheck rejects fragments that resolve outside a root directory.
// Symlinks are resolved when the fragment exists.
type WithinRootCheck struct {
	root string
}

// NewWithinRootCheck creates a root confinement check.
func NewWithinRootCheck(root string) *WithinRootCheck {
	return &WithinRootCheck{root: resolvePath(root)}
}

func (c *WithinRootCheck) Name() string { return "within_root" }

func (c *WithinRootCheck) Check(path string) CheckResult {
	rel, err := filepath.Rel(c.root, resolvePath(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Reject("outside_root")
	}
	return Accept()
}

// resolvePath returns the absolute, symlink-free form of path where possible.
// A missing file is resolved through its parent directory.
func resolvePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(path)); err == nil {
		return filepath.Join(dir, filepath.Base(path))
	}
	return path
}
