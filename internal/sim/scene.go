package sim

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"texstream/internal/catalog"
	"texstream/internal/instance"
	"texstream/internal/streaming"
	"texstream/internal/texture"
)

const (
	defaultScreenSize  = 1920
	defaultExtent      = 1
	defaultTexelFactor = 1
)

type simLevel struct {
	id         string
	visible    bool
	primitives []*Primitive
}

// Scene is a manifest turned into live objects. It is driven by one
// goroutine, the frame loop.
type Scene struct {
	name  string
	log   zerolog.Logger
	clock *Clock
	gpu   *GPU

	textures     []*Texture
	byName       map[string]*Texture
	levels       []*simLevel
	dynamic      []*Primitive
	players      []*Primitive
	drawDistance float32

	camera camera
}

type camera struct {
	path       []mgl32.Vec3
	speed      float32
	screenSize float32
	boost      float32
	segment    int
	along      float32
	pos        mgl32.Vec3
}

// advance moves the camera dist units along its looping path.
func (c *camera) advance(dist float32) {
	if len(c.path) < 2 || dist <= 0 {
		return
	}
	for guard := 0; dist > 0 && guard < 4*len(c.path); guard++ {
		from := c.path[c.segment]
		to := c.path[(c.segment+1)%len(c.path)]
		seg := to.Sub(from).Len()
		left := seg - c.along
		if dist < left {
			c.along += dist
			break
		}
		dist -= left
		c.segment = (c.segment + 1) % len(c.path)
		c.along = 0
	}
	from := c.path[c.segment]
	to := c.path[(c.segment+1)%len(c.path)]
	if seg := to.Sub(from).Len(); seg > 0 {
		c.pos = from.Add(to.Sub(from).Mul(c.along / seg))
	} else {
		c.pos = from
	}
}

func vec(v catalog.Vec3) mgl32.Vec3 { return mgl32.Vec3{v[0], v[1], v[2]} }

// Build creates the textures and primitives of m. Textures are registered
// with gpu so their memory shows in its stats.
func Build(m *catalog.Manifest, clock *Clock, gpu *GPU, logger zerolog.Logger) (*Scene, error) {
	if m == nil {
		return nil, errors.New("nil manifest")
	}
	s := &Scene{
		name:         m.Name,
		log:          logger.With().Str("component", "sim").Str("scene", m.Name).Logger(),
		clock:        clock,
		gpu:          gpu,
		byName:       make(map[string]*Texture, len(m.Textures)),
		drawDistance: m.DrawDistance,
		camera: camera{
			speed:      m.Camera.Speed,
			screenSize: m.Camera.ScreenSize,
			boost:      m.Camera.Boost,
		},
	}
	if s.camera.screenSize <= 0 {
		s.camera.screenSize = defaultScreenSize
	}
	for _, p := range m.Camera.Path {
		s.camera.path = append(s.camera.path, vec(p))
	}
	if len(s.camera.path) > 0 {
		s.camera.pos = s.camera.path[0]
	}

	bandwidth := m.BandwidthMBPerSec * (1 << 20)
	for _, td := range m.Textures {
		var group texture.Group
		if td.Group != "" {
			g, err := texture.ParseGroup(td.Group)
			if err != nil {
				return nil, errors.Wrapf(err, "texture %q", td.Name)
			}
			group = g
		}
		t := NewTexture(td.Name, TextureOptions{
			Group:            group,
			Mips:             td.Mips,
			NonStreamingMips: td.NonStreamingMips,
			LODBias:          td.LODBias,
			BytesPerTexel:    td.BytesPerTexel,
			ResidentMips:     td.ResidentMips,
			Forced:           td.Forced,
			Bandwidth:        bandwidth,
		}, clock, gpu)
		s.textures = append(s.textures, t)
		s.byName[td.Name] = t
	}

	for _, ld := range m.Levels {
		l := &simLevel{id: ld.ID, visible: ld.Visible == nil || *ld.Visible}
		for _, pd := range ld.Primitives {
			p, err := s.primitive(pd, instance.Static)
			if err != nil {
				return nil, errors.Wrapf(err, "level %q", ld.ID)
			}
			l.primitives = append(l.primitives, p)
		}
		s.levels = append(s.levels, l)
	}
	for _, pd := range m.Dynamic {
		p, err := s.primitive(pd, instance.Movable)
		if err != nil {
			return nil, err
		}
		s.dynamic = append(s.dynamic, p)
		if pd.Player {
			s.players = append(s.players, p)
		}
	}
	return s, nil
}

func (s *Scene) primitive(pd catalog.Primitive, mobility instance.Mobility) (*Primitive, error) {
	switch pd.Mobility {
	case "":
	case "static":
		mobility = instance.Static
	case "movable":
		mobility = instance.Movable
	default:
		return nil, errors.Errorf("primitive %q: unknown mobility %q", pd.Name, pd.Mobility)
	}
	refs := make([]instance.TextureRef, 0, len(pd.Textures))
	for _, r := range pd.Textures {
		t, ok := s.byName[r.Texture]
		if !ok {
			return nil, errors.Errorf("primitive %q: unknown texture %q", pd.Name, r.Texture)
		}
		factor := r.TexelFactor
		if factor <= 0 {
			factor = defaultTexelFactor
		}
		refs = append(refs, instance.TextureRef{Texture: t, TexelFactor: factor, ForceLoad: r.ForceLoad})
	}
	extent := vec(pd.Extent)
	if extent == (mgl32.Vec3{}) {
		extent = mgl32.Vec3{defaultExtent, defaultExtent, defaultExtent}
	}
	p := NewPrimitive(pd.Name, mobility, vec(pd.Origin), extent, refs)
	p.SetVelocity(vec(pd.Velocity))
	return p, nil
}

func (s *Scene) Name() string { return s.name }

// Textures lists the scene textures in manifest order.
func (s *Scene) Textures() []*Texture { return s.textures }

// Texture finds a texture by name.
func (s *Scene) Texture(name string) *Texture { return s.byName[name] }

// Viewpoint is the camera as the streamer sees it.
func (s *Scene) Viewpoint() instance.Viewpoint {
	return instance.Viewpoint{Origin: s.camera.pos, ScreenSize: s.camera.screenSize, BoostFactor: s.camera.boost}
}

// Attach registers every texture, level and dynamic primitive with m.
func (s *Scene) Attach(m *streaming.Manager) {
	for _, t := range s.textures {
		m.AddStreamingTexture(t)
	}
	for _, l := range s.levels {
		ps := make([]instance.Primitive, len(l.primitives))
		for i, p := range l.primitives {
			ps[i] = p
		}
		m.AddLevel(l.id, ps)
		if !l.visible {
			if err := m.SetLevelVisible(l.id, false); err != nil {
				s.log.Warn().Err(err).Str("level", l.id).Msg("level visibility")
			}
		}
	}
	for _, p := range s.dynamic {
		m.NotifyPrimitiveAttached(p)
	}
	players := make([]instance.Primitive, len(s.players))
	for i, p := range s.players {
		players[i] = p
	}
	m.SetPlayerPrimitives(players)
	m.SetViewpoints([]instance.Viewpoint{s.Viewpoint()})
	s.log.Info().
		Int("textures", len(s.textures)).
		Int("levels", len(s.levels)).
		Int("dynamic", len(s.dynamic)).
		Msg("scene attached")
}

// Detach unregisters everything Attach registered.
func (s *Scene) Detach(m *streaming.Manager) {
	for _, l := range s.levels {
		if err := m.RemoveLevel(l.id); err != nil && !streaming.IsLevelNotFound(err) {
			s.log.Warn().Err(err).Str("level", l.id).Msg("remove level")
		}
	}
	ps := make([]instance.Primitive, len(s.dynamic))
	for i, p := range s.dynamic {
		ps[i] = p
	}
	m.NotifyActorDestroyed(ps)
	m.SetPlayerPrimitives(nil)
	for _, t := range s.textures {
		m.RemoveStreamingTexture(t)
	}
}

// Step advances time by dt, moves the camera and movable primitives, draws
// what is in range and tells m what changed.
func (s *Scene) Step(m *streaming.Manager, dt time.Duration) {
	s.clock.Advance(dt)
	secs := float32(dt.Seconds())
	s.camera.advance(s.camera.speed * secs)

	for _, p := range s.dynamic {
		if p.Step(secs) {
			m.NotifyPrimitiveUpdated(p)
		}
	}
	s.render(m)
	m.SetViewpoints([]instance.Viewpoint{s.Viewpoint()})
}

// Frame is Step followed by one streaming update.
func (s *Scene) Frame(m *streaming.Manager, dt time.Duration) {
	s.Step(m, dt)
	m.UpdateResourceStreaming(float32(dt.Seconds()), false)
}

func (s *Scene) inRange(p *Primitive) bool {
	return s.drawDistance <= 0 || p.distanceTo(s.camera.pos) <= s.drawDistance
}

func (s *Scene) draw(p *Primitive, world float32, app float64) {
	p.markRendered(world)
	for _, r := range p.StreamingTextures() {
		if t, ok := r.Texture.(*Texture); ok {
			t.MarkRendered(app)
		}
	}
}

func (s *Scene) render(m *streaming.Manager) {
	world, app := s.clock.WorldTime(), s.clock.AppTime()
	for _, l := range s.levels {
		drawn := false
		for _, p := range l.primitives {
			if s.inRange(p) {
				s.draw(p, world, app)
				drawn = true
			}
		}
		if drawn != l.visible {
			l.visible = drawn
			if err := m.SetLevelVisible(l.id, drawn); err != nil {
				s.log.Debug().Err(err).Str("level", l.id).Msg("level visibility")
			}
		}
	}
	for _, p := range s.dynamic {
		if s.inRange(p) {
			s.draw(p, world, app)
		}
	}
}
