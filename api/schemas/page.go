package schemas

import (
	"errors"
	"strings"
)

// ErrElementNotFound is returned by Snapshot lookups for ids absent from the page.
var ErrElementNotFound = errors.New("element not found")

// PageElement is one interactable element as captured by the page scraper.
type PageElement struct {
	ID         string            `json:"id" yaml:"id"`
	Tag        string            `json:"tag,omitempty" yaml:"tag,omitempty"`
	Text       string            `json:"text,omitempty" yaml:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Visible reports whether the element's inline style hides it.
func (e PageElement) Visible() bool {
	if _, hidden := e.Attributes["hidden"]; hidden {
		return false
	}
	style := strings.ReplaceAll(strings.ToLower(e.Attributes["style"]), " ", "")
	return !strings.Contains(style, "display:none") && !strings.Contains(style, "visibility:hidden")
}

// Enabled reports whether the element lacks a truthy disabled attribute.
// A bare disabled attribute (empty value) counts as disabled, as in HTML.
func (e PageElement) Enabled() bool {
	v, ok := e.Attributes["disabled"]
	if !ok {
		return true
	}
	return strings.EqualFold(v, "false")
}

// Snapshot is an immutable capture of page state at one instant. Build it with
// NewSnapshot; the zero value is an empty page with no URL.
type Snapshot struct {
	url      string
	elements []PageElement
	byID     map[string]int
	counts   map[string]int
}

// NewSnapshot copies the given elements so later mutation by the caller cannot
// leak into the snapshot. The first element with a given id wins lookups.
func NewSnapshot(url string, elements []PageElement) *Snapshot {
	s := &Snapshot{
		url:      url,
		elements: make([]PageElement, len(elements)),
		byID:     make(map[string]int, len(elements)),
		counts:   make(map[string]int, len(elements)),
	}
	for i, el := range elements {
		attrs := make(map[string]string, len(el.Attributes))
		for k, v := range el.Attributes {
			attrs[k] = v
		}
		el.Attributes = attrs
		s.elements[i] = el
		if el.ID == "" {
			continue
		}
		if _, seen := s.byID[el.ID]; !seen {
			s.byID[el.ID] = i
		}
		s.counts[el.ID]++
	}
	return s
}

func (s *Snapshot) lookup(id string) (PageElement, error) {
	if s == nil {
		return PageElement{}, ErrElementNotFound
	}
	idx, ok := s.byID[id]
	if !ok {
		return PageElement{}, ErrElementNotFound
	}
	return s.elements[idx], nil
}

// ElementExists reports whether an element with the id is present.
func (s *Snapshot) ElementExists(id string) (bool, error) {
	_, err := s.lookup(id)
	if errors.Is(err, ErrElementNotFound) {
		return false, nil
	}
	return err == nil, err
}

// ElementVisible reports whether the element is present and not hidden.
func (s *Snapshot) ElementVisible(id string) (bool, error) {
	el, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	return el.Visible(), nil
}

// ElementEnabled reports whether the element is present and not disabled.
func (s *Snapshot) ElementEnabled(id string) (bool, error) {
	el, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	return el.Enabled(), nil
}

// ElementText returns the element's text content.
func (s *Snapshot) ElementText(id string) (string, error) {
	el, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

// ElementCount returns the number of elements sharing the id.
func (s *Snapshot) ElementCount(id string) (int, error) {
	if s == nil {
		return 0, nil
	}
	return s.counts[id], nil
}

// CurrentURL returns the URL the snapshot was captured at.
func (s *Snapshot) CurrentURL() string {
	if s == nil {
		return ""
	}
	return s.url
}

// Elements returns a copy of the captured elements in page order.
func (s *Snapshot) Elements() []PageElement {
	if s == nil {
		return nil
	}
	out := make([]PageElement, len(s.elements))
	for i, el := range s.elements {
		attrs := make(map[string]string, len(el.Attributes))
		for k, v := range el.Attributes {
			attrs[k] = v
		}
		el.Attributes = attrs
		out[i] = el
	}
	return out
}

// SnapshotDocument is the serialized form of a Snapshot, as read from disk.
type SnapshotDocument struct {
	URL      string        `json:"url" yaml:"url"`
	Elements []PageElement `json:"elements" yaml:"elements"`
}

// Snapshot converts the document into an immutable Snapshot.
func (d SnapshotDocument) Snapshot() *Snapshot {
	return NewSnapshot(d.URL, d.Elements)
}
