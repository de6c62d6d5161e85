package action

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimhawk/trajector/api/schemas"
)

func TestEncodePixel(t *testing.T) {
	codec := NewCodec(Options{})

	testCases := []struct {
		name     string
		action   schemas.Action
		expected string
	}{
		{
			name:     "Click",
			action:   schemas.Action{Kind: schemas.ActionClick, Params: map[string]string{"x": "1710", "y": "100"}},
			expected: "click(point='<point>1710 100</point>')",
		},
		{
			name:     "LeftDouble",
			action:   schemas.Action{Kind: schemas.ActionLeftDouble, Params: map[string]string{"x": "50", "y": "60"}},
			expected: "left_double(point='<point>50 60</point>')",
		},
		{
			name:     "RightSingle",
			action:   schemas.Action{Kind: schemas.ActionRightSingle, Params: map[string]string{"x": "5", "y": "6"}},
			expected: "right_single(point='<point>5 6</point>')",
		},
		{
			name:     "Hover",
			action:   schemas.Action{Kind: schemas.ActionHover, Params: map[string]string{"x": "0", "y": "0"}},
			expected: "hover(point='<point>0 0</point>')",
		},
		{
			name:     "Type",
			action:   schemas.Action{Kind: schemas.ActionType, Params: map[string]string{"content": "google.com"}},
			expected: "type(content='google.com')",
		},
		{
			name:     "Hotkey",
			action:   schemas.Action{Kind: schemas.ActionHotkey, Params: map[string]string{"key": "ctrl c"}},
			expected: "hotkey(key='ctrl c')",
		},
		{
			name:     "Press",
			action:   schemas.Action{Kind: schemas.ActionPress, Params: map[string]string{"key": "enter"}},
			expected: "press(key='enter')",
		},
		{
			name:     "Drag",
			action:   schemas.Action{Kind: schemas.ActionDrag, Params: map[string]string{"x1": "100", "y1": "100", "x2": "500", "y2": "500"}},
			expected: "drag(start_point='<point>100 100</point>', end_point='<point>500 500</point>')",
		},
		{
			name:     "Scroll",
			action:   schemas.Action{Kind: schemas.ActionScroll, Params: map[string]string{"x": "800", "y": "600", "direction": "down", "pixels": "100"}},
			expected: "scroll(point='<point>800 600</point>', direction='down', pixels=100)",
		},
		{
			name:     "Finished",
			action:   schemas.Action{Kind: schemas.ActionFinished, Params: map[string]string{"content": "Task completed"}},
			expected: "finished(content='Task completed')",
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := codec.Encode(tt.action, VariantPixel)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, encoded)

			// Encode output must be byte-stable for identical input.
			again, err := codec.Encode(tt.action, VariantPixel)
			require.NoError(t, err)
			assert.Equal(t, encoded, again)
		})
	}
}

func TestEncodePixelFailures(t *testing.T) {
	codec := NewCodec(Options{})

	t.Run("QuoteDelimiterCollision", func(t *testing.T) {
		a := schemas.Action{Kind: schemas.ActionType, Params: map[string]string{"content": "it's broken"}}
		_, err := codec.Encode(a, VariantPixel)
		assert.ErrorContains(t, err, "delimiter")
	})

	t.Run("MissingCoordinate", func(t *testing.T) {
		a := schemas.Action{Kind: schemas.ActionClick, Params: map[string]string{"x": "10"}}
		_, err := codec.Encode(a, VariantPixel)
		assert.ErrorContains(t, err, "missing parameter y")
	})

	t.Run("NonIntegerCoordinate", func(t *testing.T) {
		a := schemas.Action{Kind: schemas.ActionClick, Params: map[string]string{"x": "ten", "y": "5"}}
		_, err := codec.Encode(a, VariantPixel)
		assert.ErrorContains(t, err, "not an integer")
	})

	t.Run("UnknownKind", func(t *testing.T) {
		a := schemas.Action{Kind: "teleport", Params: map[string]string{}}
		_, err := codec.Encode(a, VariantPixel)
		assert.ErrorContains(t, err, "unknown action kind")
	})
}

func TestEncodeNormalized(t *testing.T) {
	codec := NewCodec(Options{})

	testCases := []struct {
		name     string
		action   schemas.Action
		expected string
	}{
		{
			name:     "Click",
			action:   schemas.Action{Kind: schemas.ActionClick, Params: map[string]string{"x": "891", "y": "93"}},
			expected: `click(start_box="<|box_start|>(891, 93)<|box_end|>")`,
		},
		{
			name:     "Select",
			action:   schemas.Action{Kind: schemas.ActionSelect, Params: map[string]string{"x": "0", "y": "1000"}},
			expected: `select(start_box="<|box_start|>(0, 1000)<|box_end|>")`,
		},
		{
			name:     "TypeWithBox",
			action:   schemas.Action{Kind: schemas.ActionType, Params: map[string]string{"content": "hello", "x": "12", "y": "34"}},
			expected: `type(content="hello", start_box="<|box_start|>(12, 34)<|box_end|>")`,
		},
		{
			name:     "TypeContentOnly",
			action:   schemas.Action{Kind: schemas.ActionType, Params: map[string]string{"content": "hello"}},
			expected: `type(content="hello")`,
		},
		{
			name:     "Press",
			action:   schemas.Action{Kind: schemas.ActionPress, Params: map[string]string{"key": "enter"}},
			expected: `press(key="enter")`,
		},
		{
			name:     "Finished",
			action:   schemas.Action{Kind: schemas.ActionFinished, Params: map[string]string{"content": "done"}},
			expected: `finished(content="done")`,
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := codec.Encode(tt.action, VariantNormalized)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, encoded)
		})
	}

	t.Run("OutOfRangeCoordinate", func(t *testing.T) {
		a := schemas.Action{Kind: schemas.ActionClick, Params: map[string]string{"x": "1001", "y": "0"}}
		_, err := codec.Encode(a, VariantNormalized)
		assert.ErrorContains(t, err, "outside normalized range")
	})

	t.Run("DragHasNoNormalizedForm", func(t *testing.T) {
		a := schemas.Action{Kind: schemas.ActionDrag, Params: map[string]string{"x1": "1", "y1": "2", "x2": "3", "y2": "4"}}
		_, err := codec.Encode(a, VariantNormalized)
		assert.ErrorContains(t, err, "not representable")
	})
}

func TestTypeRequiresBoxOption(t *testing.T) {
	strict := NewCodec(Options{RequireTypeBox: true})
	lenient := NewCodec(Options{})

	contentOnly := schemas.Action{Kind: schemas.ActionType, Params: map[string]string{"content": "hi"}}

	t.Run("StrictEncodeRejectsContentOnly", func(t *testing.T) {
		_, err := strict.Encode(contentOnly, VariantNormalized)
		assert.ErrorContains(t, err, "start_box")
	})

	t.Run("StrictDecodeRejectsContentOnly", func(t *testing.T) {
		_, err := strict.Decode(`type(content="hi")`, VariantNormalized)
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Contains(t, parseErr.Reason, "start_box")
	})

	t.Run("LenientAcceptsContentOnly", func(t *testing.T) {
		got, err := lenient.Decode(`type(content="hi")`, VariantNormalized)
		require.NoError(t, err)
		assert.Equal(t, contentOnly, got)
	})

	t.Run("StrictAcceptsBoxedType", func(t *testing.T) {
		got, err := strict.Decode(`type(content="hi", start_box="<|box_start|>(5, 7)<|box_end|>")`, VariantNormalized)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"content": "hi", "x": "5", "y": "7"}, got.Params)
	})
}

// TestRoundTrip asserts the structural round-trip law: decoding an encoded
// action yields a field-for-field equal action.
func TestRoundTrip(t *testing.T) {
	codec := NewCodec(Options{})

	pixelActions := []schemas.Action{
		{Kind: schemas.ActionClick, Params: map[string]string{"x": "1710", "y": "100"}},
		{Kind: schemas.ActionLeftDouble, Params: map[string]string{"x": "0", "y": "0"}},
		{Kind: schemas.ActionRightSingle, Params: map[string]string{"x": "-5", "y": "3"}},
		{Kind: schemas.ActionHover, Params: map[string]string{"x": "88", "y": "12"}},
		{Kind: schemas.ActionType, Params: map[string]string{"content": "multi\nline, with (parens)"}},
		{Kind: schemas.ActionHotkey, Params: map[string]string{"key": "cmd shift 4"}},
		{Kind: schemas.ActionPress, Params: map[string]string{"key": "tab"}},
		{Kind: schemas.ActionKeyDown, Params: map[string]string{"key": "shift"}},
		{Kind: schemas.ActionKeyUp, Params: map[string]string{"key": "shift"}},
		{Kind: schemas.ActionDrag, Params: map[string]string{"x1": "100", "y1": "100", "x2": "500", "y2": "500"}},
		{Kind: schemas.ActionSelect, Params: map[string]string{"x1": "10", "y1": "20", "x2": "30", "y2": "40"}},
		{Kind: schemas.ActionScroll, Params: map[string]string{"x": "800", "y": "600", "direction": "up", "pixels": "250"}},
		{Kind: schemas.ActionFinished, Params: map[string]string{"content": "Task completed successfully"}},
	}

	for _, a := range pixelActions {
		action := a
		t.Run("Pixel/"+string(action.Kind), func(t *testing.T) {
			encoded, err := codec.Encode(action, VariantPixel)
			require.NoError(t, err)
			decoded, err := codec.Decode(encoded, VariantPixel)
			require.NoError(t, err, "decoding %q", encoded)
			assert.Equal(t, action, decoded)
		})
	}

	normalizedActions := []schemas.Action{
		{Kind: schemas.ActionClick, Params: map[string]string{"x": "891", "y": "93"}},
		{Kind: schemas.ActionSelect, Params: map[string]string{"x": "0", "y": "1000"}},
		{Kind: schemas.ActionType, Params: map[string]string{"content": "query text", "x": "500", "y": "40"}},
		{Kind: schemas.ActionType, Params: map[string]string{"content": "query text"}},
		{Kind: schemas.ActionPress, Params: map[string]string{"key": "enter"}},
		{Kind: schemas.ActionHotkey, Params: map[string]string{"key": "ctrl a"}},
		{Kind: schemas.ActionFinished, Params: map[string]string{"content": "done"}},
	}

	for i, a := range normalizedActions {
		action := a
		t.Run("Normalized/"+string(action.Kind)+string(rune('0'+i)), func(t *testing.T) {
			encoded, err := codec.Encode(action, VariantNormalized)
			require.NoError(t, err)
			decoded, err := codec.Decode(encoded, VariantNormalized)
			require.NoError(t, err, "decoding %q", encoded)
			assert.Equal(t, action, decoded)
		})
	}
}

func TestDecodeFailures(t *testing.T) {
	codec := NewCodec(Options{})

	testCases := []struct {
		name    string
		raw     string
		variant Variant
		reason  string
	}{
		{
			name:    "NonIntegerCoordinate",
			raw:     "click(point='<point>abc 100</point>')",
			variant: VariantPixel,
			reason:  "not a valid <point>X Y</point> token",
		},
		{
			name:    "UnknownActionName",
			raw:     "teleport(point='<point>1 2</point>')",
			variant: VariantPixel,
			reason:  `unknown action "teleport"`,
		},
		{
			name:    "MissingRequiredParameter",
			raw:     "press()",
			variant: VariantPixel,
			reason:  "missing parameter key",
		},
		{
			name:    "NotACall",
			raw:     "just some text",
			variant: VariantPixel,
			reason:  "not of the form",
		},
		{
			name:    "MissingPoint",
			raw:     "click(content='oops')",
			variant: VariantPixel,
			reason:  "missing parameter point",
		},
		{
			name:    "NormalizedOutOfRange",
			raw:     `click(start_box="<|box_start|>(1200, 50)<|box_end|>")`,
			variant: VariantNormalized,
			reason:  "outside normalized range",
		},
		{
			name:    "NormalizedMalformedBox",
			raw:     `click(start_box="<|box_start|>12 34<|box_end|>")`,
			variant: VariantNormalized,
			reason:  "not a valid box token",
		},
		{
			name:    "DuplicateParameter",
			raw:     "type(content='a', content='b')",
			variant: VariantPixel,
			reason:  "duplicate parameter",
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.raw, tt.variant)
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr, "expected a ParseError for %q", tt.raw)
			assert.Contains(t, parseErr.Reason, tt.reason)
			assert.Equal(t, tt.raw, parseErr.Raw, "ParseError must carry the raw input verbatim")
		})
	}

	// Well formed but semantically odd values decode fine; range checks beyond
	// the normalized [0,1000] rule are the caller's concern.
	t.Run("OriginLikeCoordinatesAreAccepted", func(t *testing.T) {
		got, err := codec.Decode("click(point='<point>0 0</point>')", VariantPixel)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"x": "0", "y": "0"}, got.Params)
	})
}

func TestDecodeScrollDefaultsPixels(t *testing.T) {
	codec := NewCodec(Options{})
	got, err := codec.Decode("scroll(point='<point>800 600</point>', direction='down', pixels=100)", VariantPixel)
	require.NoError(t, err)
	assert.Equal(t, "100", got.Params["pixels"])

	// The original annotation UI occasionally omits pixels; the decoder fills
	// in the documented default.
	got, err = codec.Decode("scroll(point='<point>800 600</point>', direction='down')", VariantPixel)
	require.NoError(t, err)
	assert.Equal(t, "100", got.Params["pixels"])
	assert.Equal(t, "down", got.Params["direction"])
}

func TestToNormalized(t *testing.T) {
	codec := NewCodec(Options{})

	t.Run("rescales click coordinates", func(t *testing.T) {
		a := schemas.Action{Kind: schemas.ActionClick, Params: map[string]string{"x": "1710", "y": "100"}}
		got, err := codec.ToNormalized(a, 1920, 1080)
		require.NoError(t, err)
		assert.Equal(t, "891", got.Param("x"))
		assert.Equal(t, "93", got.Param("y"))

		encoded, err := codec.Encode(got, VariantNormalized)
		require.NoError(t, err)
		assert.Equal(t, `click(start_box="<|box_start|>(891, 93)<|box_end|>")`, encoded)
	})

	t.Run("type without coordinates passes through", func(t *testing.T) {
		a := schemas.Action{Kind: schemas.ActionType, Params: map[string]string{"content": "admin"}}
		got, err := codec.ToNormalized(a, 1920, 1080)
		require.NoError(t, err)
		assert.Equal(t, a, got)
	})

	t.Run("coordinate free actions pass through", func(t *testing.T) {
		a := schemas.Action{Kind: schemas.ActionPress, Params: map[string]string{"key": "enter"}}
		got, err := codec.ToNormalized(a, 1920, 1080)
		require.NoError(t, err)
		assert.Equal(t, a, got)
	})

	t.Run("original action is not mutated", func(t *testing.T) {
		a := schemas.Action{Kind: schemas.ActionSelect, Params: map[string]string{"x": "960", "y": "540"}}
		_, err := codec.ToNormalized(a, 1920, 1080)
		require.NoError(t, err)
		assert.Equal(t, "960", a.Param("x"))
	})

	t.Run("rejects unrepresentable kinds", func(t *testing.T) {
		a := schemas.Action{Kind: schemas.ActionDrag, Params: map[string]string{
			"x1": "0", "y1": "0", "x2": "10", "y2": "10",
		}}
		_, err := codec.ToNormalized(a, 1920, 1080)
		require.Error(t, err)
	})

	t.Run("rejects bad dimensions", func(t *testing.T) {
		a := schemas.Action{Kind: schemas.ActionClick, Params: map[string]string{"x": "10", "y": "10"}}
		_, err := codec.ToNormalized(a, 0, 1080)
		require.Error(t, err)
	})
}

func TestParseErrorTruncation(t *testing.T) {
	codec := NewCodec(Options{})

	raw := "type(content='" + strings.Repeat("検索語", 100) + "'"
	_, err := codec.Decode(raw, VariantPixel)
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, raw, parseErr.Raw, "Raw carries the full input verbatim")

	msg := err.Error()
	assert.True(t, utf8.ValidString(msg), "error text must stay valid UTF-8")
	assert.Contains(t, msg, "...")
}
