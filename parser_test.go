package sd2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain runs a Reader to completion (or to the first fatal error), returning
// every event produced and the error if one halted the stream.
func drain(t *testing.T, r *Reader) ([]Event, error) {
	t.Helper()
	var evs []Event
	for {
		ev, err := r.Next()
		if err != nil {
			return evs, err
		}
		evs = append(evs, ev)
		if ev.Kind() == EventEndDocument {
			return evs, nil
		}
	}
}

func newReader(t *testing.T, src string, opts ...ReaderOption) *Reader {
	t.Helper()
	return NewReader(NewRuneSource(src), opts...)
}

func TestReaderWidgetWithAttributes(t *testing.T) {
	src := `Button ok {
  label = "OK"
  width = 42
  icon = ui.icons.check
}
`
	evs, err := drain(t, newReader(t, src))
	require.NoError(t, err)

	require.Equal(t, EventStartDocument, evs[0].Kind())
	start := evs[1].(StartElementEvent)
	assert.Equal(t, "Button", start.Keyword)
	assert.True(t, start.HasID)
	assert.Equal(t, "ok", start.ID)

	attrs := map[string]AttributeEvent{}
	for _, ev := range evs {
		if a, ok := ev.(AttributeEvent); ok {
			attrs[a.Name] = a
		}
	}
	require.Contains(t, attrs, "label")
	require.Contains(t, attrs, "width")
	require.Contains(t, attrs, "icon")

	label := attrs["label"].Value.(StringValue)
	assert.Equal(t, "OK", label.Value)
	width := attrs["width"].Value.(IntValue)
	assert.Equal(t, int64(42), width.Value)
	icon := attrs["icon"].Value.(QNameValue)
	assert.Equal(t, QualifiedName{"ui", "icons", "check"}, icon.Name)

	last := evs[len(evs)-1]
	assert.Equal(t, EventEndDocument, last.Kind())
}

func TestReaderNamespaceScope(t *testing.T) {
	src := `Page {
  .header {
    Title txt {
      text = "hi"
    }
  }
}
`
	evs, err := drain(t, newReader(t, src))
	require.NoError(t, err)

	var kinds []EventKind
	for _, ev := range evs {
		kinds = append(kinds, ev.Kind())
	}
	assert.Contains(t, kinds, EventStartNamespace)
	assert.Contains(t, kinds, EventEndNamespace)

	for _, ev := range evs {
		if ns, ok := ev.(StartNamespaceEvent); ok {
			assert.Equal(t, "header", ns.Name)
		}
	}
}

func TestReaderTuplesAndConstructor(t *testing.T) {
	src := `Shape s {
  origin = Point(10, 20)
  trailing = (42,)
  empty = ()
}
`
	evs, err := drain(t, newReader(t, src))
	require.NoError(t, err)

	var origin, trailing, empty Value
	for _, ev := range evs {
		if a, ok := ev.(AttributeEvent); ok {
			switch a.Name {
			case "origin":
				origin = a.Value
			case "trailing":
				trailing = a.Value
			case "empty":
				empty = a.Value
			}
		}
	}

	ctor := origin.(ConstructorTupleValue)
	assert.Equal(t, QualifiedName{"Point"}, ctor.Name)
	require.Len(t, ctor.Args, 2)
	assert.Equal(t, int64(10), ctor.Args[0].(IntValue).Value)
	assert.Equal(t, int64(20), ctor.Args[1].(IntValue).Value)

	tup := trailing.(TupleValue)
	require.Len(t, tup.Items, 1)
	assert.Equal(t, int64(42), tup.Items[0].(IntValue).Value)

	emptyTup := empty.(TupleValue)
	assert.Len(t, emptyTup.Items, 0)
}

func TestReaderInstantConstructorResolves(t *testing.T) {
	src := `Event e {
  at = instant("2024-01-02T03:04:05Z")
}
`
	evs, err := drain(t, newReader(t, src))
	require.NoError(t, err)

	var at Value
	for _, ev := range evs {
		if a, ok := ev.(AttributeEvent); ok && a.Name == "at" {
			at = a.Value
		}
	}
	obj := at.(ObjectValue)
	assert.Equal(t, QualifiedName{"temporal", "instant"}, obj.TypeTag)
	assert.NotNil(t, obj.Payload)
}

func TestReaderNamedConstructorBodyResolves(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Rgb", QualifiedName{"color", "rgb"}, func(ctx *ConstructorContext) (any, *Error) {
		r, _ := ctx.Get("r")
		g, _ := ctx.Get("g")
		b, _ := ctx.Get("b")
		return [3]int64{r.(IntValue).Value, g.(IntValue).Value, b.(IntValue).Value}, nil
	})

	src := `Shape s {
  color = Rgb {
    r = 255
    g = 0
    b = 0
  }
}
`
	evs, err := drain(t, newReader(t, src, WithConstructorRegistry(reg)))
	require.NoError(t, err)

	var color Value
	for _, ev := range evs {
		if a, ok := ev.(AttributeEvent); ok && a.Name == "color" {
			color = a.Value
		}
	}

	obj := color.(ObjectValue)
	assert.Equal(t, QualifiedName{"color", "rgb"}, obj.TypeTag)
	assert.Equal(t, [3]int64{255, 0, 0}, obj.Payload)
}

func TestReaderNamedConstructorBodyUnknownKeptRaw(t *testing.T) {
	src := `Shape s {
  color = Rgb {
    r = 255
    g = 0
  }
}
`
	evs, err := drain(t, newReader(t, src, WithConstructorRegistry(NewRegistry()), WithUnknownConstructorPolicy(KeepRaw)))
	require.NoError(t, err)

	var color Value
	for _, ev := range evs {
		if a, ok := ev.(AttributeEvent); ok && a.Name == "color" {
			color = a.Value
		}
	}

	named := color.(ConstructorNamedValue)
	assert.Equal(t, QualifiedName{"Rgb"}, named.Name)
	require.Len(t, named.Entries, 2)
	assert.Equal(t, "r", named.Entries[0].Key)
	assert.Equal(t, int64(255), named.Entries[0].Value.(IntValue).Value)
	assert.Equal(t, "g", named.Entries[1].Key)
	assert.Equal(t, int64(0), named.Entries[1].Value.(IntValue).Value)
}

func TestReaderInstantConstructorFailureIsFatal(t *testing.T) {
	src := `Event e {
  at = instant("not-a-date")
}
`
	_, err := drain(t, newReader(t, src))
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrTemporalParse, perr.Code)
}

func TestReaderForeignBlocks(t *testing.T) {
	src := "Job j {\n" +
		"  script = sh@'echo ok'\n" +
		"  query = db.postgresql@\"SELECT 1\"\n" +
		"}\n"
	evs, err := drain(t, newReader(t, src))
	require.NoError(t, err)

	var script, query Value
	for _, ev := range evs {
		if a, ok := ev.(AttributeEvent); ok {
			switch a.Name {
			case "script":
				script = a.Value
			case "query":
				query = a.Value
			}
		}
	}
	sv := script.(ForeignValue)
	assert.Equal(t, QualifiedName{"sh"}, sv.Constructor)
	assert.Equal(t, "echo ok", sv.Content)

	qv := query.(ForeignValue)
	assert.Equal(t, QualifiedName{"db", "postgresql"}, qv.Constructor)
	assert.Equal(t, "SELECT 1", qv.Content)
}

func TestReaderQualifierWithoutArgsFails(t *testing.T) {
	src := "Button ok readonly {\n}\n"
	_, err := drain(t, newReader(t, src))
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrQualifierNoArgs, perr.Code)
}

func TestReaderQualifierContinuationAcrossLines(t *testing.T) {
	src := "Button ok visible cond.a, cond.b\n" +
		"|      visible cond.c {\n" +
		"}\n"
	evs, err := drain(t, newReader(t, src))
	require.NoError(t, err)
	start := evs[1].(StartElementEvent)
	require.Len(t, start.Qualifiers, 2)
	assert.Equal(t, "visible", start.Qualifiers[0].Ident)
	assert.Equal(t, "visible", start.Qualifiers[1].Ident)
}

func TestReaderQualifierContinuationWrongColumnFails(t *testing.T) {
	src := "Button ok visible cond.a\n" +
		"  | visible cond.b {\n" +
		"}\n"
	_, err := drain(t, newReader(t, src))
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrQualifierContinuation, perr.Code)
}

func TestReaderBodyBraceNotOnHeaderLineFails(t *testing.T) {
	src := "Button ok\n{\n}\n"
	_, err := drain(t, newReader(t, src))
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrBodyNotSameLine, perr.Code)
}

func TestReaderDuplicateMapKeyFails(t *testing.T) {
	src := "Widget w {\n  opts = { a = 1, a = 2 }\n}\n"
	_, err := drain(t, newReader(t, src))
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrDuplicateMapKey, perr.Code)
}

func TestReaderUnknownConstructorKeptRaw(t *testing.T) {
	src := `Shape s {
  color = Rgb(255, 0, 0)
}
`
	evs, err := drain(t, newReader(t, src))
	require.NoError(t, err)
	for _, ev := range evs {
		if a, ok := ev.(AttributeEvent); ok && a.Name == "color" {
			ctor := a.Value.(ConstructorTupleValue)
			assert.Equal(t, QualifiedName{"Rgb"}, ctor.Name)
		}
	}
}

func TestReaderUnknownConstructorErrorPolicy(t *testing.T) {
	src := `Shape s {
  color = Rgb(255, 0, 0)
}
`
	_, err := drain(t, newReader(t, src, WithUnknownConstructorPolicy(ErrorOnUnknown)))
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrUnknownConstructor, perr.Code)
}

func TestReaderRecoveryModeCollectsErrors(t *testing.T) {
	src := "Widget w {\n" +
		"  opts = { a = 1, a = 2 }\n" +
		"  ok = 3\n" +
		"}\n"
	r := newReader(t, src, WithRecovery(true))
	evs, err := drain(t, r)
	require.NoError(t, err)
	require.NotEmpty(t, r.Errors())
	assert.Equal(t, ErrDuplicateMapKey, r.Errors()[0].Code)

	found := false
	for _, ev := range evs {
		if a, ok := ev.(AttributeEvent); ok && a.Name == "ok" {
			found = true
			assert.Equal(t, int64(3), a.Value.(IntValue).Value)
		}
	}
	assert.True(t, found, "expected recovery to resume and still emit the following attribute")
}

func TestReaderDocumentAnnotation(t *testing.T) {
	src := "#![meta.version(1)]\nButton ok {\n}\n"
	evs, err := drain(t, newReader(t, src))
	require.NoError(t, err)
	ann := evs[1].(DocumentAnnotationEvent)
	assert.Equal(t, QualifiedName{"meta", "version"}, ann.Annotation.Name)
	assert.True(t, ann.Annotation.HasArgs)
}

func TestReaderElementAnnotationAttachesToNextElement(t *testing.T) {
	src := "#[deprecated]\nButton ok {\n}\n"
	evs, err := drain(t, newReader(t, src))
	require.NoError(t, err)
	start := evs[1].(StartElementEvent)
	require.Len(t, start.Annotations, 1)
	assert.Equal(t, QualifiedName{"deprecated"}, start.Annotations[0].Name)
	assert.False(t, start.Annotations[0].HasArgs)
}

func TestReaderDocumentAnnotationAfterFirstElementFails(t *testing.T) {
	src := "Button ok {\n}\n#![meta.version(1)]\n"
	_, err := drain(t, newReader(t, src))
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrGenericSyntax, perr.Code)
}

func TestReaderBacktickIdentifierAsElementID(t *testing.T) {
	src := "Button `true` {\n}\n"
	evs, err := drain(t, newReader(t, src))
	require.NoError(t, err)
	start := evs[1].(StartElementEvent)
	assert.Equal(t, "true", start.ID)
}

func TestReaderReservedWordForeignFails(t *testing.T) {
	src := "Widget w {\n  flag = true@'x'\n}\n"
	_, err := drain(t, newReader(t, src))
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrForeignReservedWord, perr.Code)
}

func TestReaderForeignAdjacencyFails(t *testing.T) {
	src := "Widget w {\n  script = sh @'echo hi'\n}\n"
	_, err := drain(t, newReader(t, src))
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrForeignAdjacency, perr.Code)
}

func TestReaderTypeAscriptionWithArgs(t *testing.T) {
	src := "List l : Map<String, Int> {\n}\n"
	evs, err := drain(t, newReader(t, src))
	require.NoError(t, err)
	start := evs[1].(StartElementEvent)
	require.NotNil(t, start.Type)
	assert.Equal(t, QualifiedName{"Map"}, start.Type.Path)
	require.Len(t, start.Type.Args, 2)
	assert.Equal(t, QualifiedName{"String"}, start.Type.Args[0].Path)
	assert.Equal(t, QualifiedName{"Int"}, start.Type.Args[1].Path)
}

func TestReaderBracketedMapKey(t *testing.T) {
	src := "Widget w {\n  m = { [1] = \"one\" }\n}\n"
	evs, err := drain(t, newReader(t, src))
	require.NoError(t, err)
	for _, ev := range evs {
		if a, ok := ev.(AttributeEvent); ok && a.Name == "m" {
			m := a.Value.(MapValue)
			require.Len(t, m.Entries, 1)
			assert.Equal(t, "1", m.Entries[0].Key)
		}
	}
}

func TestReaderEndDocumentIsIdempotent(t *testing.T) {
	r := newReader(t, "Button ok {\n}\n")
	_, err := drain(t, r)
	require.NoError(t, err)
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, EventEndDocument, ev.Kind())
}
