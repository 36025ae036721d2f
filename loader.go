package projectm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// The preset text format is INI-like: one "key=value" per line, // comments,
// optional [section] headers (ignored). Equation sections are numbered lines
// (per_frame_1, per_frame_2, ...) joined in order into one program. Each
// section parses independently: a syntax error disables that section only.
// The preset fails to load only if the required per_frame section is missing
// or unparsable.

// equation line collections, keyed by line number
type numberedLines map[int]string

func (n numberedLines) join() string {
	if len(n) == 0 {
		return ""
	}
	keys := make([]int, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(n[k])
		b.WriteString(";\n")
	}
	return b.String()
}

// joinRaw concatenates lines without statement separators. Used for shader
// sources, which are verbatim multi-line text.
func (n numberedLines) joinRaw() string {
	if len(n) == 0 {
		return ""
	}
	keys := make([]int, 0, len(n))
	for k := range n {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(n[k])
		b.WriteString("\n")
	}
	return b.String()
}

type presetSource struct {
	scalars  map[string]float64
	init     numberedLines
	perFrame numberedLines
	perVert  numberedLines
	warp     numberedLines
	comp     numberedLines
	textures map[string]string

	shapeScalars [maxCustomShapes]map[string]float64
	shapeTex     [maxCustomShapes]string
	shapeFrame   [maxCustomShapes]numberedLines

	waveScalars [maxCustomWaves]map[string]float64
	waveFrame   [maxCustomWaves]numberedLines
	wavePoint   [maxCustomWaves]numberedLines

	hasPerFrame bool
}

func newPresetSource() *presetSource {
	s := &presetSource{
		scalars:  make(map[string]float64),
		init:     make(numberedLines),
		perFrame: make(numberedLines),
		perVert:  make(numberedLines),
		warp:     make(numberedLines),
		comp:     make(numberedLines),
		textures: make(map[string]string),
	}
	for i := range s.shapeScalars {
		s.shapeScalars[i] = make(map[string]float64)
		s.shapeFrame[i] = make(numberedLines)
	}
	for i := range s.waveScalars {
		s.waveScalars[i] = make(map[string]float64)
		s.waveFrame[i] = make(numberedLines)
		s.wavePoint[i] = make(numberedLines)
	}
	return s
}

// ParsePreset parses raw preset text into a Preset. It never panics on
// malformed input: non-required sections that fail to parse are recorded as
// warnings on the returned Preset, and only a missing or unparsable per_frame
// section yields a *LoadError.
//
// Parsing touches no GPU state and is safe to run off the render thread.
func ParsePreset(name, text string) (*Preset, error) {
	src := newPresetSource()
	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || line[0] == '[' || strings.HasPrefix(line, "//") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:eq]))
		value := line[eq+1:]
		// Shader source lines keep "//" verbatim; everywhere else it starts
		// a trailing comment.
		if !strings.HasPrefix(key, "warp_") && !strings.HasPrefix(key, "comp_") {
			if idx := strings.Index(value, "//"); idx >= 0 {
				value = value[:idx]
			}
			value = strings.TrimSpace(value)
		}
		classifyLine(src, key, value)
	}

	p := &Preset{
		Name:     name,
		textures: src.textures,
	}
	p.env, p.refs = newPresetEnv()

	var failures []*SectionError

	// Equation identifiers bind into the preset's own env, so parse order
	// matters only for diagnostics, never for semantics.
	p.initProg = parseSection(p, "init", src.init.join(), p.env, &failures)
	p.frameProg = parseSection(p, "per_frame", src.perFrame.join(), p.env, &failures)
	p.vertexProg = parseSection(p, "per_vertex", src.perVert.join(), p.env, &failures)
	p.warpSrc = src.warp.joinRaw()
	p.compSrc = src.comp.joinRaw()

	applyDefaults(p, src.scalars)

	for i := 0; i < maxCustomShapes; i++ {
		p.shapes[i] = buildShape(p, i, src, &failures)
	}
	for i := 0; i < maxCustomWaves; i++ {
		p.waves[i] = buildWave(p, i, src, &failures)
	}

	// per_frame is the one required section.
	if !src.hasPerFrame || p.frameProg == nil {
		le := &LoadError{Name: name}
		if !src.hasPerFrame {
			le.Sections = append(le.Sections, &SectionError{
				Section: "per_frame",
				Err:     fmt.Errorf("missing required per_frame section"),
			})
		}
		le.Sections = append(le.Sections, failures...)
		logger.WithField("preset", name).Warn("preset load failed")
		return nil, le
	}

	p.Warnings = failures
	p.resetRegisters()
	return p, nil
}

// parseSection compiles one equation block, converting a parse failure into a
// recorded SectionError and a nil (no-op) program.
func parseSection(p *Preset, section, text string, e *env, failures *[]*SectionError) *program {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	prog, err := parseProgram(text, e)
	if err != nil {
		*failures = append(*failures, &SectionError{Section: section, Err: err})
		logger.WithFields(logFields{
			"preset":  p.Name,
			"section": section,
		}).WithError(err).Warn("equation block disabled")
		return nil
	}
	return prog
}

// classifyLine routes one key=value line into the right bucket of src.
func classifyLine(src *presetSource, key, value string) {
	switch {
	case strings.HasPrefix(key, "per_frame_init_"):
		addNumbered(src.init, key[len("per_frame_init_"):], value)
	case strings.HasPrefix(key, "init_"):
		addNumbered(src.init, key[len("init_"):], value)
	case strings.HasPrefix(key, "per_frame_"):
		if addNumbered(src.perFrame, key[len("per_frame_"):], value) {
			src.hasPerFrame = true
		}
	case strings.HasPrefix(key, "per_vertex_"):
		addNumbered(src.perVert, key[len("per_vertex_"):], value)
	case strings.HasPrefix(key, "per_pixel_"):
		addNumbered(src.perVert, key[len("per_pixel_"):], value)
	case strings.HasPrefix(key, "warp_"):
		addNumbered(src.warp, key[len("warp_"):], value)
	case strings.HasPrefix(key, "comp_"):
		addNumbered(src.comp, key[len("comp_"):], value)
	case strings.HasPrefix(key, "texture_"):
		src.textures[key[len("texture_"):]] = strings.TrimSpace(value)
	case strings.HasPrefix(key, "shapecode_"):
		if i, field, ok := splitIndexed(key[len("shapecode_"):]); ok && i < maxCustomShapes {
			if field == "tex" {
				src.shapeTex[i] = strings.TrimSpace(value)
			} else if v, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				src.shapeScalars[i][field] = v
			}
		}
	case strings.HasPrefix(key, "shape_"):
		if i, rest, ok := splitIndexed(key[len("shape_"):]); ok && i < maxCustomShapes {
			if strings.HasPrefix(rest, "per_frame_") {
				addNumbered(src.shapeFrame[i], rest[len("per_frame_"):], value)
			}
		}
	case strings.HasPrefix(key, "wavecode_"):
		if i, field, ok := splitIndexed(key[len("wavecode_"):]); ok && i < maxCustomWaves {
			if v, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				src.waveScalars[i][field] = v
			}
		}
	case strings.HasPrefix(key, "wave_") && isIndexedEquation(key[len("wave_"):]):
		if i, rest, ok := splitIndexed(key[len("wave_"):]); ok && i < maxCustomWaves {
			switch {
			case strings.HasPrefix(rest, "per_frame_"):
				addNumbered(src.waveFrame[i], rest[len("per_frame_"):], value)
			case strings.HasPrefix(rest, "per_point_"):
				addNumbered(src.wavePoint[i], rest[len("per_point_"):], value)
			}
		}
	default:
		// Bare scalar default, e.g. "zoom=1.01" or "q1=3".
		if v, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			src.scalars[key] = v
		}
	}
}

// addNumbered stores an equation line under its numeric suffix.
func addNumbered(dst numberedLines, suffix, value string) bool {
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return false
	}
	dst[n] = value
	return true
}

// splitIndexed splits "3_rad" into (3, "rad").
func splitIndexed(s string) (int, string, bool) {
	us := strings.IndexByte(s, '_')
	if us <= 0 {
		return 0, "", false
	}
	i, err := strconv.Atoi(s[:us])
	if err != nil || i < 0 {
		return 0, "", false
	}
	return i, s[us+1:], true
}

// isIndexedEquation distinguishes "wave_0_per_point_1" from scalar defaults
// like "wave_r" that also begin with the wave_ prefix.
func isIndexedEquation(rest string) bool {
	us := strings.IndexByte(rest, '_')
	if us <= 0 {
		return false
	}
	_, err := strconv.Atoi(rest[:us])
	return err == nil
}

// applyDefaults seeds the env from declared scalars and records the per-frame
// output reset list and q register defaults.
func applyDefaults(p *Preset, scalars map[string]float64) {
	// Built-in output defaults first.
	values := make(map[int]float64, len(outputSlotDefaults))
	for _, d := range outputSlotDefaults {
		slot, _ := p.env.lookup(d.name)
		values[slot] = d.value
	}
	// Preset-declared overrides, including q registers and custom variables.
	for name, v := range scalars {
		slot := p.env.bind(name)
		if p.env.isReadOnly(slot) {
			continue
		}
		if qi, ok := qIndex(p.refs, slot); ok {
			p.qDefaults[qi] = v
			continue
		}
		if _, isOutput := values[slot]; isOutput {
			values[slot] = v
			continue
		}
		// Custom variable: set once, persists like a register.
		p.env.slots[slot] = v
	}
	p.defaults = make([]slotValue, 0, len(values))
	for slot, v := range values {
		p.defaults = append(p.defaults, slotValue{slot: slot, value: v})
	}
	p.resetFrameOutputs()
}

func qIndex(r *slotRefs, slot int) (int, bool) {
	for i, s := range r.q {
		if s == slot {
			return i, true
		}
	}
	return 0, false
}
