// Package catalog loads scene manifests: the textures, levels, dynamic
// primitives and camera path the simulated renderer feeds to the streamer.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"texstream/internal/common/fsutil"
	"texstream/internal/texture"
)

//go:embed manifest.schema.json
var manifestSchema string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("manifest.schema.json", manifestSchema)
	})
	return schema, schemaErr
}

// Vec3 is an x, y, z triple in world units.
type Vec3 [3]float32

// Manifest describes one scene.
type Manifest struct {
	Name string `json:"name"`
	// DrawDistance is how far from the camera primitives count as rendered (0: everything).
	DrawDistance float32 `json:"draw_distance"`
	// BandwidthMBPerSec bounds the simulated mip I/O (0: instant).
	BandwidthMBPerSec float64     `json:"bandwidth_mb_per_sec"`
	Textures          []Texture   `json:"textures"`
	Levels            []Level     `json:"levels"`
	Dynamic           []Primitive `json:"dynamic"`
	Camera            Camera      `json:"camera"`
}

type Texture struct {
	Name             string  `json:"name"`
	Group            string  `json:"group"`
	Mips             int     `json:"mips"`
	NonStreamingMips int     `json:"non_streaming_mips"`
	LODBias          int     `json:"lod_bias"`
	BytesPerTexel    float64 `json:"bytes_per_texel"`
	ResidentMips     int     `json:"resident_mips"`
	Forced           bool    `json:"forced"`
}

type Level struct {
	ID         string      `json:"id"`
	Visible    *bool       `json:"visible"`
	Primitives []Primitive `json:"primitives"`
}

type Primitive struct {
	Name     string       `json:"name"`
	Mobility string       `json:"mobility"`
	Origin   Vec3         `json:"origin"`
	Extent   Vec3         `json:"extent"`
	Velocity Vec3         `json:"velocity"`
	Player   bool         `json:"player"`
	Textures []TextureRef `json:"textures"`
}

type TextureRef struct {
	Texture     string  `json:"texture"`
	TexelFactor float32 `json:"texel_factor"`
	ForceLoad   bool    `json:"force_load"`
}

// Camera moves along Path at Speed units per second, looping.
type Camera struct {
	Path       []Vec3  `json:"path"`
	Speed      float32 `json:"speed"`
	ScreenSize float32 `json:"screen_size"`
	Boost      float32 `json:"boost"`
}

// Load reads a manifest based on its extension.
// Supports: .yaml/.yml, .json
func Load(path string) (*Manifest, error) {
	if path == "" {
		return nil, errors.New("empty manifest path")
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, errors.Wrap(err, "read manifest")
	}
	m, err := Parse(b, filepath.Ext(p))
	if err != nil {
		return nil, errors.Wrapf(err, "manifest %s", filepath.Base(p))
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	}
	return m, nil
}

// Parse decodes, validates and cross-checks a manifest. ext selects the
// format (".yaml", ".yml" or ".json").
func Parse(b []byte, ext string) (*Manifest, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var y any
		if err := yaml.Unmarshal(b, &y); err != nil {
			return nil, errors.Wrap(err, "decode yaml")
		}
		// Round trip through JSON so the schema and the decoder see one shape.
		jb, err := json.Marshal(y)
		if err != nil {
			return nil, errors.Wrap(err, "convert yaml")
		}
		b = jb
	case ".json":
	default:
		return nil, errors.Errorf("unsupported manifest extension: %s", ext)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode json")
	}
	sch, err := compiledSchema()
	if err != nil {
		return nil, errors.Wrap(err, "compile manifest schema")
	}
	if err := sch.Validate(doc); err != nil {
		return nil, errors.Wrap(err, "validate")
	}

	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "decode manifest")
	}
	if err := m.check(); err != nil {
		return nil, err
	}
	return &m, nil
}

// check catches what the schema cannot: duplicate names and dangling
// texture references.
func (m *Manifest) check() error {
	names := make(map[string]struct{}, len(m.Textures))
	for _, t := range m.Textures {
		if _, dup := names[t.Name]; dup {
			return errors.Errorf("duplicate texture %q", t.Name)
		}
		if t.Group != "" {
			if _, err := texture.ParseGroup(t.Group); err != nil {
				return errors.Wrapf(err, "texture %q", t.Name)
			}
		}
		names[t.Name] = struct{}{}
	}
	checkRefs := func(p Primitive) error {
		for _, r := range p.Textures {
			if _, ok := names[r.Texture]; !ok {
				return errors.Errorf("primitive %q references unknown texture %q", p.Name, r.Texture)
			}
		}
		return nil
	}
	levels := make(map[string]struct{}, len(m.Levels))
	for _, l := range m.Levels {
		if _, dup := levels[l.ID]; dup {
			return errors.Errorf("duplicate level %q", l.ID)
		}
		levels[l.ID] = struct{}{}
		for _, p := range l.Primitives {
			if err := checkRefs(p); err != nil {
				return errors.Wrapf(err, "level %q", l.ID)
			}
		}
	}
	for _, p := range m.Dynamic {
		if err := checkRefs(p); err != nil {
			return err
		}
	}
	return nil
}

// NumPrimitives counts level and dynamic primitives.
func (m *Manifest) NumPrimitives() int {
	n := len(m.Dynamic)
	for _, l := range m.Levels {
		n += len(l.Primitives)
	}
	return n
}

// LoadDir scans a directory for manifests (*.yaml, *.yml, *.json) and loads
// them sorted by file name. The first invalid manifest fails the scan.
func LoadDir(dir string) ([]*Manifest, error) {
	abs, err := fsutil.Resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, errors.Wrap(err, "read dir")
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	var out []*Manifest
	for _, name := range files {
		m, err := Load(filepath.Join(abs, name))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
