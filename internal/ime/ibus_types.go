package ime

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"
)

// IBus serializes its objects as D-Bus structs whose first two members
// are the type name and an attachment dictionary. The structs below
// mirror that layout field by field; godbus encodes them in order.

// ibusAttribute is IBusAttribute: (sa{sv}uuuu).
type ibusAttribute struct {
	Name        string
	Attachments map[string]dbus.Variant
	Type        uint32
	Value       uint32
	Start       uint32
	End         uint32
}

// ibusAttrList is IBusAttrList: (sa{sv}av).
type ibusAttrList struct {
	Name        string
	Attachments map[string]dbus.Variant
	Attributes  []dbus.Variant
}

// ibusText is IBusText: (sa{sv}sv).
type ibusText struct {
	Name        string
	Attachments map[string]dbus.Variant
	Text        string
	AttrList    dbus.Variant
}

// ibusLookupTable is IBusLookupTable: (sa{sv}uubbiavav).
type ibusLookupTable struct {
	Name          string
	Attachments   map[string]dbus.Variant
	PageSize      uint32
	CursorPos     uint32
	CursorVisible bool
	Round         bool
	Orientation   int32
	Candidates    []dbus.Variant
	Labels        []dbus.Variant
}

// ibusEngineDesc is IBusEngineDesc: (sa{sv}ssssssssusssssss).
type ibusEngineDesc struct {
	Name          string
	Attachments   map[string]dbus.Variant
	EngineName    string
	LongName      string
	Description   string
	Language      string
	License       string
	Author        string
	Icon          string
	Layout        string
	Rank          uint32
	Hotkeys       string
	Symbol        string
	Setup         string
	LayoutVariant string
	LayoutOption  string
	Version       string
	TextDomain    string
	IconPropKey   string
}

// ibusComponent is IBusComponent: (sa{sv}ssssssssavav).
type ibusComponent struct {
	Name          string
	Attachments   map[string]dbus.Variant
	ComponentName string
	Description   string
	Version       string
	License       string
	Author        string
	Homepage      string
	Exec          string
	TextDomain    string
	ObservedPaths []dbus.Variant
	Engines       []dbus.Variant
}

// Attribute types and underline styles used for preedit decoration.
const (
	attrTypeUnderline   uint32 = 1
	attrUnderlineSingle uint32 = 1
)

// Lookup table orientations.
const (
	OrientationHorizontal int32 = 0
	OrientationVertical   int32 = 1
	OrientationSystem     int32 = 2
)

func attachments() map[string]dbus.Variant {
	return map[string]dbus.Variant{}
}

func attrListVariant(attrs ...ibusAttribute) dbus.Variant {
	list := ibusAttrList{
		Name:        "IBusAttrList",
		Attachments: attachments(),
		Attributes:  make([]dbus.Variant, 0, len(attrs)),
	}
	for _, a := range attrs {
		list.Attributes = append(list.Attributes, dbus.MakeVariant(a))
	}
	return dbus.MakeVariant(list)
}

// TextVariant wraps s as a serialized IBusText.
func TextVariant(s string) dbus.Variant {
	return dbus.MakeVariant(ibusText{
		Name:        "IBusText",
		Attachments: attachments(),
		Text:        s,
		AttrList:    attrListVariant(),
	})
}

// PreeditVariant wraps s as an IBusText underlined end to end.
func PreeditVariant(s string) dbus.Variant {
	n := uint32(utf8.RuneCountInString(s))
	if n == 0 {
		return TextVariant(s)
	}
	return dbus.MakeVariant(ibusText{
		Name:        "IBusText",
		Attachments: attachments(),
		Text:        s,
		AttrList: attrListVariant(ibusAttribute{
			Name:        "IBusAttribute",
			Attachments: attachments(),
			Type:        attrTypeUnderline,
			Value:       attrUnderlineSingle,
			Start:       0,
			End:         n,
		}),
	})
}

// TextFromVariant extracts the string from a serialized IBusText.
func TextFromVariant(v dbus.Variant) (string, error) {
	if t, ok := v.Value().(ibusText); ok {
		return t.Text, nil
	}
	fields, ok := v.Value().([]interface{})
	if !ok {
		return "", fmt.Errorf("IBusText: unexpected value %T", v.Value())
	}
	if len(fields) < 3 {
		return "", errors.New("IBusText: short struct")
	}
	if name, _ := fields[0].(string); name != "IBusText" {
		return "", fmt.Errorf("IBusText: unexpected type name %q", name)
	}
	text, ok := fields[2].(string)
	if !ok {
		return "", fmt.Errorf("IBusText: unexpected text %T", fields[2])
	}
	return text, nil
}

// LookupTableOptions controls how a page is rendered by the panel.
type LookupTableOptions struct {
	Orientation int32
	// ShowHints labels each candidate with its remaining input.
	ShowHints bool
}

// LookupTableVariant serializes one page as an IBusLookupTable.
func LookupTableVariant(page LookupPage, opts LookupTableOptions) dbus.Variant {
	table := ibusLookupTable{
		Name:          "IBusLookupTable",
		Attachments:   attachments(),
		PageSize:      uint32(max(page.PageSize, 1)),
		CursorVisible: page.Cursor >= 0,
		Round:         false,
		Orientation:   opts.Orientation,
		Candidates:    make([]dbus.Variant, 0, len(page.Candidates)),
		Labels:        make([]dbus.Variant, 0, len(page.Candidates)),
	}
	if page.Cursor >= 0 {
		table.CursorPos = uint32(page.Cursor)
	}
	for i, c := range page.Candidates {
		table.Candidates = append(table.Candidates, TextVariant(c.Text))
		label := fmt.Sprintf("%d.", i+1)
		if opts.ShowHints && c.Hint != "" {
			label = fmt.Sprintf("%d.~%s", i+1, c.Hint)
		}
		table.Labels = append(table.Labels, TextVariant(label))
	}
	return dbus.MakeVariant(table)
}

// EngineDescVariant serializes the engine metadata as IBusEngineDesc.
func EngineDescVariant(c ComponentInfo) dbus.Variant {
	return dbus.MakeVariant(ibusEngineDesc{
		Name:        "IBusEngineDesc",
		Attachments: attachments(),
		EngineName:  c.EngineName,
		LongName:    c.LongName,
		Description: c.Description,
		Language:    c.Language,
		License:     c.License,
		Author:      c.Author,
		Icon:        c.Icon,
		Layout:      c.Layout,
		Rank:        c.Rank,
		Symbol:      c.Symbol,
		Version:     c.Version,
		TextDomain:  c.TextDomain,
	})
}

// ComponentVariant serializes the component descriptor registered with
// the IBus daemon.
func ComponentVariant(c ComponentInfo) dbus.Variant {
	return dbus.MakeVariant(ibusComponent{
		Name:          "IBusComponent",
		Attachments:   attachments(),
		ComponentName: c.BusName,
		Description:   c.LongName,
		Version:       c.Version,
		License:       c.License,
		Author:        c.Author,
		Homepage:      c.Homepage,
		Exec:          c.Exec,
		TextDomain:    c.TextDomain,
		ObservedPaths: []dbus.Variant{},
		Engines:       []dbus.Variant{EngineDescVariant(c)},
	})
}
