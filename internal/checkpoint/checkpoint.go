// Package checkpoint saves and restores trained models as JSON documents.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/samcharles93/charnet/internal/model"
	"github.com/samcharles93/charnet/internal/tensor"
)

// Format identifies the document layout written by Encode.
const Format = "charnet/v1"

var ErrFormat = errors.New("unsupported checkpoint format")

// File is the on-disk representation of a model.
type File struct {
	Format     string                `json:"format"`
	Arch       model.Arch            `json:"arch"`
	HiddenSize int                   `json:"hidden_size"`
	Vocab      []string              `json:"vocab"`
	Params     map[string]tensor.Mat `json:"params"`
	State      State                 `json:"state"`
}

// State holds the carried recurrent memory. Both fields are omitted for
// FFNN and C only exists for LSTM.
type State struct {
	H *tensor.Mat `json:"h,omitempty"`
	C *tensor.Mat `json:"c,omitempty"`
}

// FromModel captures every parameter and the recurrent state of m.
func FromModel(m model.Model) *File {
	f := &File{
		Format:     Format,
		Arch:       m.Arch(),
		HiddenSize: m.HiddenSize(),
		Vocab:      append([]string(nil), m.Vocab().Tokens...),
		Params:     make(map[string]tensor.Mat, len(m.Params())),
	}
	for _, p := range m.Params() {
		f.Params[p.Name] = p.Value.Clone()
	}
	st := m.State()
	if !st.H.Empty() {
		h := st.H.Clone()
		f.State.H = &h
	}
	if !st.C.Empty() {
		c := st.C.Clone()
		f.State.C = &c
	}
	return f
}

// Model rebuilds the model described by f.
func (f *File) Model() (model.Model, error) {
	if f.Format != Format {
		return nil, fmt.Errorf("%w: %q", ErrFormat, f.Format)
	}
	vocab, err := model.NewVocab(f.Vocab)
	if err != nil {
		return nil, fmt.Errorf("checkpoint vocab: %w", err)
	}
	var st model.State
	if f.State.H != nil {
		st.H = *f.State.H
	}
	if f.State.C != nil {
		st.C = *f.State.C
	}
	m, err := model.Restore(f.Arch, vocab, f.HiddenSize, f.Params, st)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s model: %w", f.Arch, err)
	}
	return m, nil
}

// Encode writes m to w as indented JSON.
func Encode(w io.Writer, m model.Model) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(FromModel(m)); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return nil
}

// Decode reads a checkpoint document from r.
func Decode(r io.Reader) (model.Model, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return f.Model()
}

// Save writes m to path through a temporary file so a crash never leaves a
// truncated checkpoint behind.
func Save(path string, m model.Model) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	err = Encode(f, m)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write checkpoint %s: %w", path, err)
	}
	return nil
}

// Load reads the checkpoint at path.
func Load(path string) (model.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()
	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
