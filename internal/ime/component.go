package ime

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ComponentFile is the file name of the installed IBus component.
const ComponentFile = "ibus-afrim.xml"

// ComponentInfo describes the engine to the IBus daemon, both in the
// installed component XML and in RegisterComponent calls.
type ComponentInfo struct {
	BusName     string
	EngineName  string
	LongName    string
	Description string
	Language    string
	License     string
	Author      string
	Icon        string
	Layout      string
	Rank        uint32
	Symbol      string
	Version     string
	Homepage    string
	Exec        string
	TextDomain  string
}

// Validate reports the fields IBus cannot do without.
func (c ComponentInfo) Validate() error {
	var errs []error
	if c.BusName == "" {
		errs = append(errs, errors.New("component: bus name is required"))
	}
	if c.EngineName == "" {
		errs = append(errs, errors.New("component: engine name is required"))
	}
	if c.Exec == "" {
		errs = append(errs, errors.New("component: exec is required"))
	}
	return errors.Join(errs...)
}

type xmlEngine struct {
	Name        string `xml:"name"`
	Language    string `xml:"language"`
	License     string `xml:"license,omitempty"`
	Author      string `xml:"author,omitempty"`
	Icon        string `xml:"icon,omitempty"`
	Layout      string `xml:"layout"`
	LongName    string `xml:"longname"`
	Description string `xml:"description,omitempty"`
	Rank        uint32 `xml:"rank"`
	Symbol      string `xml:"symbol,omitempty"`
}

type xmlComponent struct {
	XMLName     xml.Name    `xml:"component"`
	Name        string      `xml:"name"`
	Description string      `xml:"description"`
	Exec        string      `xml:"exec"`
	Version     string      `xml:"version,omitempty"`
	Author      string      `xml:"author,omitempty"`
	License     string      `xml:"license,omitempty"`
	Homepage    string      `xml:"homepage,omitempty"`
	TextDomain  string      `xml:"textdomain,omitempty"`
	Engines     []xmlEngine `xml:"engines>engine"`
}

// ComponentXML renders the component descriptor IBus reads from its
// component directory. The exec line carries --ibus so the daemon-started
// process claims the bus name instead of registering itself.
func ComponentXML(c ComponentInfo) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	doc := xmlComponent{
		Name:        c.BusName,
		Description: c.LongName,
		Exec:        c.Exec + " --ibus",
		Version:     c.Version,
		Author:      c.Author,
		License:     c.License,
		Homepage:    c.Homepage,
		TextDomain:  c.TextDomain,
		Engines: []xmlEngine{{
			Name:        c.EngineName,
			Language:    c.Language,
			License:     c.License,
			Author:      c.Author,
			Icon:        c.Icon,
			Layout:      c.Layout,
			LongName:    c.LongName,
			Description: c.Description,
			Rank:        c.Rank,
			Symbol:      c.Symbol,
		}},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode component: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// ComponentDir returns the per-user IBus component directory.
func ComponentDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "ibus", "component"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "ibus", "component"), nil
}

// InstallComponent writes the component XML into dir and returns its path.
func InstallComponent(dir string, c ComponentInfo) (string, error) {
	data, err := ComponentXML(c)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, ComponentFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// UninstallComponent removes the component XML from dir. A missing file
// is not an error.
func UninstallComponent(dir string) error {
	err := os.Remove(filepath.Join(dir, ComponentFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
