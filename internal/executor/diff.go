package executor

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sysaidmin/sysaidmin/internal/model"
)

// editSummary describes what a file edit would change, for dry-run review.
// Textual targets get a unified diff; binary or new targets a size delta.
func (e *Executor) editSummary(spec model.FileEditSpec) string {
	old, err := os.ReadFile(spec.Path)
	if err != nil {
		return fmt.Sprintf("new file, %d bytes", len(spec.NewContent))
	}

	if !isText(old) || !isText(spec.NewContent) {
		return fmt.Sprintf("size change %d -> %d bytes", len(old), len(spec.NewContent))
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(old)),
		B:        difflib.SplitLines(string(spec.NewContent)),
		FromFile: spec.Path,
		ToFile:   spec.Path + " (proposed)",
		Context:  3,
	})
	if err != nil {
		return fmt.Sprintf("size change %d -> %d bytes", len(old), len(spec.NewContent))
	}
	if diff == "" {
		return "no content change"
	}
	return "diff:\n" + diff
}

func isText(b []byte) bool {
	return utf8.Valid(b) && !bytes.ContainsRune(b, 0)
}
