package ime

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireSignatures(t *testing.T) {
	tests := []struct {
		name string
		v    dbus.Variant
		want string
	}{
		{"text", TextVariant("ɛ"), "(sa{sv}sv)"},
		{"preedit", PreeditVariant("ɛ"), "(sa{sv}sv)"},
		{"lookup table", LookupTableVariant(LookupPage{PageSize: 9, Cursor: -1}, LookupTableOptions{}), "(sa{sv}uubbiavav)"},
		{"engine desc", EngineDescVariant(testComponent()), "(sa{sv}ssssssssusssssss)"},
		{"component", ComponentVariant(testComponent()), "(sa{sv}ssssssssavav)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Signature().String())
		})
	}
}

func TestPreeditVariantUnderlinesRunes(t *testing.T) {
	text := PreeditVariant("àŋ").Value().(ibusText)
	list := text.AttrList.Value().(ibusAttrList)
	require.Len(t, list.Attributes, 1)
	attr := list.Attributes[0].Value().(ibusAttribute)
	assert.Equal(t, uint32(0), attr.Start)
	assert.Equal(t, uint32(2), attr.End)
	assert.Equal(t, attrTypeUnderline, attr.Type)

	empty := PreeditVariant("").Value().(ibusText)
	assert.Empty(t, empty.AttrList.Value().(ibusAttrList).Attributes)
}

func TestTextFromVariant(t *testing.T) {
	wire := dbus.MakeVariant([]interface{}{
		"IBusText",
		map[string]dbus.Variant{},
		"hello",
		dbus.MakeVariant([]interface{}{"IBusAttrList", map[string]dbus.Variant{}, []dbus.Variant{}}),
	})
	got, err := TextFromVariant(wire)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = TextFromVariant(TextVariant("local"))
	require.NoError(t, err)
	assert.Equal(t, "local", got)

	_, err = TextFromVariant(dbus.MakeVariant("plain"))
	assert.Error(t, err)

	_, err = TextFromVariant(dbus.MakeVariant([]interface{}{"IBusAttrList", map[string]dbus.Variant{}, "x"}))
	assert.Error(t, err)
}

func TestLookupTableVariant(t *testing.T) {
	page := LookupPage{
		Candidates: []Candidate{{Text: "ɛ", Hint: ""}, {Text: "ɛ̀", Hint: "2"}},
		Cursor:     1,
		PageSize:   9,
		Total:      2,
		PageCount:  1,
	}

	table := LookupTableVariant(page, LookupTableOptions{Orientation: OrientationVertical, ShowHints: true}).Value().(ibusLookupTable)
	assert.Equal(t, uint32(9), table.PageSize)
	assert.Equal(t, uint32(1), table.CursorPos)
	assert.True(t, table.CursorVisible)
	assert.Equal(t, OrientationVertical, table.Orientation)
	require.Len(t, table.Candidates, 2)
	require.Len(t, table.Labels, 2)

	label, err := TextFromVariant(table.Labels[1])
	require.NoError(t, err)
	assert.Equal(t, "2.~2", label)
	label, err = TextFromVariant(table.Labels[0])
	require.NoError(t, err)
	assert.Equal(t, "1.", label)

	plain := LookupTableVariant(page, LookupTableOptions{}).Value().(ibusLookupTable)
	label, _ = TextFromVariant(plain.Labels[1])
	assert.Equal(t, "2.", label)

	hidden := LookupTableVariant(LookupPage{Cursor: -1}, LookupTableOptions{}).Value().(ibusLookupTable)
	assert.False(t, hidden.CursorVisible)
	assert.Equal(t, uint32(1), hidden.PageSize)
}

func TestComponentVariantCarriesEngine(t *testing.T) {
	comp := ComponentVariant(testComponent()).Value().(ibusComponent)
	assert.Equal(t, "org.freedesktop.IBus.Afrim", comp.ComponentName)
	require.Len(t, comp.Engines, 1)
	desc := comp.Engines[0].Value().(ibusEngineDesc)
	assert.Equal(t, "afrim", desc.EngineName)
	assert.Equal(t, uint32(99), desc.Rank)
}
