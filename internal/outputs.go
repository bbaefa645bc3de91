package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// File suffixes appended to the base name.
const (
	SuffixKey    = ".key"
	SuffixCSR    = ".csr"
	SuffixCACert = ".ca.pem"
	SuffixCAKey  = ".ca.key"
	SuffixCert   = ".pem"
	SuffixPubKey = ".pub"
	SuffixPKCS12 = ".pfx"
	SuffixJKS    = ".jks"
	SuffixP7B    = ".p7b"
)

// OutputFileName returns the file name for an artifact of base.
func OutputFileName(base, suffix string) string {
	return base + suffix
}

// OutputFile is one artifact ready to be written.
type OutputFile struct {
	Name      string
	Data      []byte
	Sensitive bool // written 0600
}

// OutputFiles lists the artifacts produced by a run, in pipeline order.
// Artifacts that were not produced are skipped.
func OutputFiles(base string, art Artifacts) []OutputFile {
	candidates := []OutputFile{
		{Name: OutputFileName(base, SuffixCACert), Data: art.CACert},
		{Name: OutputFileName(base, SuffixCAKey), Data: art.CAKey, Sensitive: true},
		{Name: OutputFileName(base, SuffixKey), Data: art.PrivateKey, Sensitive: true},
		{Name: OutputFileName(base, SuffixCSR), Data: art.CSR},
		{Name: OutputFileName(base, SuffixCert), Data: art.Cert},
		{Name: OutputFileName(base, SuffixPubKey), Data: art.PublicKey},
		{Name: OutputFileName(base, SuffixPKCS12), Data: art.PKCS12, Sensitive: true},
		{Name: OutputFileName(base, SuffixJKS), Data: art.JKS, Sensitive: true},
		{Name: OutputFileName(base, SuffixP7B), Data: art.P7B},
	}
	var files []OutputFile
	for _, f := range candidates {
		if f.Data != nil {
			files = append(files, f)
		}
	}
	return files
}

// ErrOutputExists is returned when a target file exists and overwriting was
// not allowed.
var ErrOutputExists = errors.New("output file already exists")

// filesystemWriter writes output files to the local filesystem under outDir.
type filesystemWriter struct {
	outDir    string
	overwrite bool
}

// WriteFiles creates outDir and writes each file with appropriate
// permissions. Existing targets are checked before anything is written.
func (w *filesystemWriter) WriteFiles(files []OutputFile) ([]string, error) {
	if !w.overwrite {
		for _, f := range files {
			path := filepath.Join(w.outDir, f.Name)
			if _, err := os.Stat(path); err == nil {
				return nil, fmt.Errorf("%s: %w (use --force to replace it)", path, ErrOutputExists)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("checking %s: %w", path, err)
			}
		}
	}

	if err := os.MkdirAll(w.outDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", w.outDir, err)
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(w.outDir, f.Name)
		mode := os.FileMode(0644)
		if f.Sensitive {
			mode = 0600
		}
		if err := os.WriteFile(path, f.Data, mode); err != nil {
			return written, fmt.Errorf("writing %s: %w", f.Name, err)
		}
		// WriteFile keeps the mode of an existing file.
		if err := os.Chmod(path, mode); err != nil {
			return written, fmt.Errorf("setting permissions on %s: %w", f.Name, err)
		}
		slog.Debug("wrote output", "path", path, "bytes", len(f.Data))
		written = append(written, path)
	}
	return written, nil
}

// WriteOutputs writes every artifact of a finished run under cfg.OutDir and
// returns the paths written.
func WriteOutputs(cfg Config, art Artifacts, overwrite bool) ([]string, error) {
	fw := &filesystemWriter{outDir: cfg.OutDir, overwrite: overwrite}
	return fw.WriteFiles(OutputFiles(cfg.BaseName, art))
}
