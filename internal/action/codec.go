// Package action implements the codec for the UI-TARS action-string grammar.
// Two serialized variants exist: the pixel form used by the annotation UI
// (single-quoted parameters, absolute coordinates) and the normalized form
// used by some training modes (double-quoted parameters, coordinates rescaled
// to [0,1000] and wrapped in <|box_start|>...<|box_end|> markers).
//
// The grammar is a byte-level compatibility contract: encoding is
// deterministic and must not introduce incidental whitespace, and decoding is
// strict about the tokens it accepts.
package action

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/claimhawk/trajector/api/schemas"
	"github.com/claimhawk/trajector/internal/geometry"
)

// Variant selects the serialized coordinate form.
type Variant string

const (
	// VariantPixel uses absolute pixel coordinates and single-quoted values,
	// e.g. click(point='<point>1710 100</point>').
	VariantPixel Variant = "pixel"
	// VariantNormalized uses [0,1000] coordinates in box markers and
	// double-quoted values, e.g. click(start_box="<|box_start|>(891, 93)<|box_end|>").
	VariantNormalized Variant = "normalized"
)

var (
	// callRegex splits an action string into its name and argument list.
	callRegex = regexp.MustCompile(`(?s)^\s*([a-z_]+)\((.*)\)\s*$`)

	// argPixelRegex and argNormalizedRegex extract name=value pairs. Values are
	// either quoted strings (character classes match newlines, so multi-line
	// content survives) or bare integers (the scroll pixels parameter).
	argPixelRegex      = regexp.MustCompile(`([a-z_]+)=(?:'([^']*)'|(-?\d+))`)
	argNormalizedRegex = regexp.MustCompile(`([a-z_]+)=(?:"([^"]*)"|(-?\d+))`)

	// pointRegex matches the pixel grammar's coordinate token exactly:
	// <point>X Y</point> with a single space separator.
	pointRegex = regexp.MustCompile(`^<point>(-?\d+) (-?\d+)</point>$`)

	// boxRegex matches the normalized grammar's coordinate token. Decoding
	// tolerates optional whitespace after the comma; encoding always emits
	// "(X, Y)".
	boxRegex = regexp.MustCompile(`^<\|box_start\|>\((-?\d+),\s*(-?\d+)\)<\|box_end\|>$`)
)

// ParseError reports a malformed action string. Raw carries the offending
// input verbatim so callers can surface it for correction.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed action string %q: %s", truncate(e.Raw, 200), e.Reason)
}

// Options controls grammar behavior that the source material leaves
// configuration-dependent.
type Options struct {
	// RequireTypeBox, when set, makes the normalized-variant type action
	// require an accompanying start_box click position. When unset, the
	// content-only form type(content="...") is accepted.
	RequireTypeBox bool
}

// Codec encodes and decodes structured actions. It is stateless and safe for
// concurrent use.
type Codec struct {
	opts Options
}

// NewCodec returns a codec with the given options.
func NewCodec(opts Options) *Codec {
	return &Codec{opts: opts}
}

// Encode serializes an action under the chosen variant. The output is
// byte-stable for identical input. Actions that are not representable under
// the variant (missing parameters, out-of-range normalized coordinates, a
// value containing the variant's quote delimiter) fail with an error.
func (c *Codec) Encode(a schemas.Action, v Variant) (string, error) {
	switch v {
	case VariantPixel:
		return c.encodePixel(a)
	case VariantNormalized:
		return c.encodeNormalized(a)
	default:
		return "", fmt.Errorf("unknown action variant %q", v)
	}
}

// Decode parses an action string under the chosen variant. The returned
// action round-trips through Encode to an equal structure.
func (c *Codec) Decode(raw string, v Variant) (schemas.Action, error) {
	switch v {
	case VariantPixel, VariantNormalized:
	default:
		return schemas.Action{}, fmt.Errorf("unknown action variant %q", v)
	}

	m := callRegex.FindStringSubmatch(raw)
	if m == nil {
		return schemas.Action{}, &ParseError{Raw: raw, Reason: "not of the form name(...)"}
	}
	kind := schemas.ActionKind(m[1])
	args, err := parseArgs(raw, m[2], v)
	if err != nil {
		return schemas.Action{}, err
	}

	if v == VariantPixel {
		return c.decodePixel(raw, kind, args)
	}
	return c.decodeNormalized(raw, kind, args)
}

// -- Pixel variant --

func (c *Codec) encodePixel(a schemas.Action) (string, error) {
	switch a.Kind {
	case schemas.ActionClick, schemas.ActionLeftDouble, schemas.ActionRightSingle, schemas.ActionHover:
		x, y, err := coordPair(a, "x", "y")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(point='<point>%d %d</point>')", a.Kind, x, y), nil

	case schemas.ActionType, schemas.ActionFinished:
		content, err := quotedParam(a, "content", "'")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(content='%s')", a.Kind, content), nil

	case schemas.ActionHotkey, schemas.ActionPress, schemas.ActionKeyDown, schemas.ActionKeyUp:
		key, err := quotedParam(a, "key", "'")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(key='%s')", a.Kind, key), nil

	case schemas.ActionDrag, schemas.ActionSelect:
		x1, y1, err := coordPair(a, "x1", "y1")
		if err != nil {
			return "", err
		}
		x2, y2, err := coordPair(a, "x2", "y2")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(start_point='<point>%d %d</point>', end_point='<point>%d %d</point>')",
			a.Kind, x1, y1, x2, y2), nil

	case schemas.ActionScroll:
		x, y, err := coordPair(a, "x", "y")
		if err != nil {
			return "", err
		}
		direction, err := quotedParam(a, "direction", "'")
		if err != nil {
			return "", err
		}
		pixels := a.Param("pixels")
		if pixels == "" {
			pixels = "100"
		}
		if _, err := strconv.Atoi(pixels); err != nil {
			return "", fmt.Errorf("action %s: parameter pixels is not an integer: %q", a.Kind, pixels)
		}
		return fmt.Sprintf("scroll(point='<point>%d %d</point>', direction='%s', pixels=%s)",
			x, y, direction, pixels), nil

	default:
		return "", fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

func (c *Codec) decodePixel(raw string, kind schemas.ActionKind, args map[string]string) (schemas.Action, error) {
	switch kind {
	case schemas.ActionClick, schemas.ActionLeftDouble, schemas.ActionRightSingle, schemas.ActionHover:
		x, y, err := parsePoint(raw, args, "point")
		if err != nil {
			return schemas.Action{}, err
		}
		return schemas.Action{Kind: kind, Params: map[string]string{"x": x, "y": y}}, nil

	case schemas.ActionType, schemas.ActionFinished:
		content, ok := args["content"]
		if !ok {
			return schemas.Action{}, &ParseError{Raw: raw, Reason: "missing parameter content"}
		}
		return schemas.Action{Kind: kind, Params: map[string]string{"content": content}}, nil

	case schemas.ActionHotkey, schemas.ActionPress, schemas.ActionKeyDown, schemas.ActionKeyUp:
		key, ok := args["key"]
		if !ok {
			return schemas.Action{}, &ParseError{Raw: raw, Reason: "missing parameter key"}
		}
		return schemas.Action{Kind: kind, Params: map[string]string{"key": key}}, nil

	case schemas.ActionDrag, schemas.ActionSelect:
		x1, y1, err := parsePoint(raw, args, "start_point")
		if err != nil {
			return schemas.Action{}, err
		}
		x2, y2, err := parsePoint(raw, args, "end_point")
		if err != nil {
			return schemas.Action{}, err
		}
		return schemas.Action{Kind: kind, Params: map[string]string{"x1": x1, "y1": y1, "x2": x2, "y2": y2}}, nil

	case schemas.ActionScroll:
		x, y, err := parsePoint(raw, args, "point")
		if err != nil {
			return schemas.Action{}, err
		}
		direction, ok := args["direction"]
		if !ok {
			return schemas.Action{}, &ParseError{Raw: raw, Reason: "missing parameter direction"}
		}
		pixels, ok := args["pixels"]
		if !ok {
			pixels = "100"
		}
		if _, err := strconv.Atoi(pixels); err != nil {
			return schemas.Action{}, &ParseError{Raw: raw, Reason: "parameter pixels is not an integer"}
		}
		return schemas.Action{Kind: kind, Params: map[string]string{
			"x": x, "y": y, "direction": direction, "pixels": pixels,
		}}, nil

	default:
		return schemas.Action{}, &ParseError{Raw: raw, Reason: fmt.Sprintf("unknown action %q", kind)}
	}
}

// -- Normalized variant --

func (c *Codec) encodeNormalized(a schemas.Action) (string, error) {
	switch a.Kind {
	case schemas.ActionClick, schemas.ActionSelect:
		box, err := boxClause(a, "x", "y")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(start_box=\"%s\")", a.Kind, box), nil

	case schemas.ActionType:
		content, err := quotedParam(a, "content", `"`)
		if err != nil {
			return "", err
		}
		_, hasX := a.Params["x"]
		_, hasY := a.Params["y"]
		if !hasX && !hasY {
			if c.opts.RequireTypeBox {
				return "", fmt.Errorf("action type: missing start_box position (required by configuration)")
			}
			return fmt.Sprintf("type(content=\"%s\")", content), nil
		}
		box, err := boxClause(a, "x", "y")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("type(content=\"%s\", start_box=\"%s\")", content, box), nil

	case schemas.ActionFinished:
		content, err := quotedParam(a, "content", `"`)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("finished(content=\"%s\")", content), nil

	case schemas.ActionHotkey, schemas.ActionPress, schemas.ActionKeyDown, schemas.ActionKeyUp:
		key, err := quotedParam(a, "key", `"`)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(key=\"%s\")", a.Kind, key), nil

	default:
		// Two-point and scroll actions have no normalized serialization.
		return "", fmt.Errorf("action %s is not representable in the normalized variant", a.Kind)
	}
}

func (c *Codec) decodeNormalized(raw string, kind schemas.ActionKind, args map[string]string) (schemas.Action, error) {
	switch kind {
	case schemas.ActionClick, schemas.ActionSelect:
		x, y, err := parseBox(raw, args, "start_box")
		if err != nil {
			return schemas.Action{}, err
		}
		return schemas.Action{Kind: kind, Params: map[string]string{"x": x, "y": y}}, nil

	case schemas.ActionType:
		content, ok := args["content"]
		if !ok {
			return schemas.Action{}, &ParseError{Raw: raw, Reason: "missing parameter content"}
		}
		if _, hasBox := args["start_box"]; !hasBox {
			if c.opts.RequireTypeBox {
				return schemas.Action{}, &ParseError{Raw: raw, Reason: "missing parameter start_box (required by configuration)"}
			}
			return schemas.Action{Kind: kind, Params: map[string]string{"content": content}}, nil
		}
		x, y, err := parseBox(raw, args, "start_box")
		if err != nil {
			return schemas.Action{}, err
		}
		return schemas.Action{Kind: kind, Params: map[string]string{"content": content, "x": x, "y": y}}, nil

	case schemas.ActionFinished:
		content, ok := args["content"]
		if !ok {
			return schemas.Action{}, &ParseError{Raw: raw, Reason: "missing parameter content"}
		}
		return schemas.Action{Kind: kind, Params: map[string]string{"content": content}}, nil

	case schemas.ActionHotkey, schemas.ActionPress, schemas.ActionKeyDown, schemas.ActionKeyUp:
		key, ok := args["key"]
		if !ok {
			return schemas.Action{}, &ParseError{Raw: raw, Reason: "missing parameter key"}
		}
		return schemas.Action{Kind: kind, Params: map[string]string{"key": key}}, nil

	default:
		return schemas.Action{}, &ParseError{Raw: raw, Reason: fmt.Sprintf("action %q has no normalized form", kind)}
	}
}

// ToNormalized rescales a pixel-variant action's coordinates onto the
// [0,1000] system for the given screenshot size. Coordinate-free actions pass
// through unchanged; actions with no normalized form fail.
func (c *Codec) ToNormalized(a schemas.Action, width, height int) (schemas.Action, error) {
	switch a.Kind {
	case schemas.ActionClick, schemas.ActionSelect:
		return rescale(a, width, height, "x", "y")
	case schemas.ActionType:
		if _, ok := a.Params["x"]; !ok {
			return a, nil
		}
		return rescale(a, width, height, "x", "y")
	case schemas.ActionFinished, schemas.ActionHotkey, schemas.ActionPress,
		schemas.ActionKeyDown, schemas.ActionKeyUp:
		return a, nil
	default:
		return schemas.Action{}, fmt.Errorf("action %s is not representable in the normalized variant", a.Kind)
	}
}

func rescale(a schemas.Action, width, height int, xName, yName string) (schemas.Action, error) {
	x, y, err := coordPair(a, xName, yName)
	if err != nil {
		return schemas.Action{}, err
	}
	nx, ny, err := geometry.ToNormalized(x, y, width, height)
	if err != nil {
		return schemas.Action{}, fmt.Errorf("action %s: %w", a.Kind, err)
	}
	params := make(map[string]string, len(a.Params))
	for k, v := range a.Params {
		params[k] = v
	}
	params[xName] = strconv.Itoa(nx)
	params[yName] = strconv.Itoa(ny)
	return schemas.Action{Kind: a.Kind, Params: params}, nil
}

// -- Helpers --

// parseArgs extracts name=value pairs from the argument list. Values keep
// their raw text; structural tokens (points, boxes) are parsed by the caller.
func parseArgs(raw, argList string, v Variant) (map[string]string, error) {
	re := argPixelRegex
	if v == VariantNormalized {
		re = argNormalizedRegex
	}
	args := make(map[string]string)
	for _, m := range re.FindAllStringSubmatch(argList, -1) {
		name := m[1]
		if _, dup := args[name]; dup {
			return nil, &ParseError{Raw: raw, Reason: fmt.Sprintf("duplicate parameter %s", name)}
		}
		if m[2] != "" || strings.Contains(m[0], "'") || strings.Contains(m[0], `"`) {
			args[name] = m[2]
		} else {
			args[name] = m[3]
		}
	}
	return args, nil
}

func parsePoint(raw string, args map[string]string, name string) (x, y string, err error) {
	val, ok := args[name]
	if !ok {
		return "", "", &ParseError{Raw: raw, Reason: fmt.Sprintf("missing parameter %s", name)}
	}
	m := pointRegex.FindStringSubmatch(val)
	if m == nil {
		return "", "", &ParseError{Raw: raw, Reason: fmt.Sprintf("parameter %s is not a valid <point>X Y</point> token", name)}
	}
	for _, coord := range m[1:3] {
		if _, err := strconv.Atoi(coord); err != nil {
			return "", "", &ParseError{Raw: raw, Reason: fmt.Sprintf("coordinate %q does not parse as an integer", coord)}
		}
	}
	return m[1], m[2], nil
}

func parseBox(raw string, args map[string]string, name string) (x, y string, err error) {
	val, ok := args[name]
	if !ok {
		return "", "", &ParseError{Raw: raw, Reason: fmt.Sprintf("missing parameter %s", name)}
	}
	m := boxRegex.FindStringSubmatch(val)
	if m == nil {
		return "", "", &ParseError{Raw: raw, Reason: fmt.Sprintf("parameter %s is not a valid box token", name)}
	}
	for _, coord := range m[1:3] {
		n, err := strconv.Atoi(coord)
		if err != nil {
			return "", "", &ParseError{Raw: raw, Reason: fmt.Sprintf("coordinate %q does not parse as an integer", coord)}
		}
		if !geometry.InRange(n) {
			return "", "", &ParseError{Raw: raw, Reason: fmt.Sprintf("coordinate %d outside normalized range [0,%d]", n, geometry.Scale)}
		}
	}
	return m[1], m[2], nil
}

// coordPair validates and returns a pair of integer coordinate parameters.
func coordPair(a schemas.Action, xName, yName string) (x, y int, err error) {
	xs, ok := a.Params[xName]
	if !ok {
		return 0, 0, fmt.Errorf("action %s: missing parameter %s", a.Kind, xName)
	}
	ys, ok := a.Params[yName]
	if !ok {
		return 0, 0, fmt.Errorf("action %s: missing parameter %s", a.Kind, yName)
	}
	x, err = strconv.Atoi(xs)
	if err != nil {
		return 0, 0, fmt.Errorf("action %s: parameter %s is not an integer: %q", a.Kind, xName, xs)
	}
	y, err = strconv.Atoi(ys)
	if err != nil {
		return 0, 0, fmt.Errorf("action %s: parameter %s is not an integer: %q", a.Kind, yName, ys)
	}
	return x, y, nil
}

// boxClause renders the normalized coordinate token, enforcing the [0,1000]
// range so that encoded output always decodes.
func boxClause(a schemas.Action, xName, yName string) (string, error) {
	x, y, err := coordPair(a, xName, yName)
	if err != nil {
		return "", err
	}
	if !geometry.InRange(x) || !geometry.InRange(y) {
		return "", fmt.Errorf("action %s: coordinates (%d, %d) outside normalized range [0,%d]", a.Kind, x, y, geometry.Scale)
	}
	return fmt.Sprintf("<|box_start|>(%d, %d)<|box_end|>", x, y), nil
}

// quotedParam returns a required string parameter, rejecting values that
// contain the variant's quote delimiter.
func quotedParam(a schemas.Action, name, delim string) (string, error) {
	val, ok := a.Params[name]
	if !ok {
		return "", fmt.Errorf("action %s: missing parameter %s", a.Kind, name)
	}
	if strings.Contains(val, delim) {
		return "", fmt.Errorf("action %s: parameter %s contains the %s delimiter", a.Kind, name, delim)
	}
	return val, nil
}

// truncate shortens s to maxLen characters, cutting on a rune boundary so
// error text stays valid UTF-8.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
