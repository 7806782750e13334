package questionbank

import (
	"sort"
	"strings"
	"unicode"
)

// CategoryPathSeparator joins ancestor names into a node's FullName
const CategoryPathSeparator = " > "

// BuildCategoryTree builds a forest from path-qualified category names such
// as "Mains > Pasta > Carbonara". Missing ancestors are created; sibling
// order follows first appearance.
func BuildCategoryTree(paths []string) []CategoryTreeNode {
	var roots []CategoryTreeNode
	for _, p := range paths {
		var parts []string
		for _, part := range strings.Split(p, strings.TrimSpace(CategoryPathSeparator)) {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			roots = insertPath(roots, parts, "")
		}
	}
	return roots
}

func insertPath(nodes []CategoryTreeNode, parts []string, parent string) []CategoryTreeNode {
	full := parts[0]
	if parent != "" {
		full = parent + CategoryPathSeparator + parts[0]
	}
	idx := -1
	for i := range nodes {
		if nodes[i].FullName == full {
			idx = i
			break
		}
	}
	if idx < 0 {
		nodes = append(nodes, CategoryTreeNode{Name: parts[0], FullName: full})
		idx = len(nodes) - 1
	}
	if len(parts) > 1 {
		nodes[idx].Children = insertPath(nodes[idx].Children, parts[1:], full)
	}
	return nodes
}

// FlatCategoryNodes turns a flat name list into a forest of leaves
func FlatCategoryNodes(names []string) []CategoryTreeNode {
	nodes := make([]CategoryTreeNode, 0, len(names))
	for _, n := range cleanCategories(names) {
		nodes = append(nodes, CategoryTreeNode{Name: n, FullName: n})
	}
	return nodes
}

// FlattenCategoryNames returns every FullName in depth-first pre-order
func FlattenCategoryNames(roots []CategoryTreeNode) []string {
	var out []string
	var walk func(nodes []CategoryTreeNode)
	walk = func(nodes []CategoryTreeNode) {
		for _, n := range nodes {
			out = append(out, n.FullName)
			walk(n.Children)
		}
	}
	walk(roots)
	return out
}

// findNode locates the node with fullName by depth-first search
func findNode(nodes []CategoryTreeNode, fullName string) *CategoryTreeNode {
	for i := range nodes {
		if nodes[i].FullName == fullName {
			return &nodes[i]
		}
		if n := findNode(nodes[i].Children, fullName); n != nil {
			return n
		}
	}
	return nil
}

// CategorySelector holds a selection set over one category tree. Toggling
// a node cascades to its descendants, never to its ancestors.
type CategorySelector struct {
	roots       []CategoryTreeNode
	all         []string
	selected    map[string]struct{}
	allSelected bool
}

// NewCategorySelector creates a selector over roots with initial selected.
// Selected names that are not nodes of the tree are dropped.
func NewCategorySelector(roots []CategoryTreeNode, selected []string) *CategorySelector {
	s := &CategorySelector{
		roots:    roots,
		all:      FlattenCategoryNames(roots),
		selected: make(map[string]struct{}, len(selected)),
	}
	for _, name := range intersect(selected, s.all) {
		s.selected[name] = struct{}{}
	}
	s.refresh()
	return s
}

// Descendants returns every FullName strictly below fullName
func (s *CategorySelector) Descendants(fullName string) []string {
	n := findNode(s.roots, fullName)
	if n == nil {
		return nil
	}
	return FlattenCategoryNames(n.Children)
}

// Toggle selects or deselects fullName together with all its descendants,
// depending on whether fullName itself is currently selected. Names not in
// the tree are ignored.
func (s *CategorySelector) Toggle(fullName string) {
	n := findNode(s.roots, fullName)
	if n == nil {
		return
	}
	names := append([]string{fullName}, FlattenCategoryNames(n.Children)...)
	if s.IsSelected(fullName) {
		for _, n := range names {
			delete(s.selected, n)
		}
	} else {
		for _, n := range names {
			s.selected[n] = struct{}{}
		}
	}
	s.refresh()
}

func (s *CategorySelector) SelectAll() {
	for _, n := range s.all {
		s.selected[n] = struct{}{}
	}
	s.refresh()
}

func (s *CategorySelector) DeselectAll() {
	for _, n := range s.all {
		delete(s.selected, n)
	}
	s.refresh()
}

// ToggleAll backs the single "select all / deselect all" control
func (s *CategorySelector) ToggleAll() {
	if s.allSelected {
		s.DeselectAll()
	} else {
		s.SelectAll()
	}
}

func (s *CategorySelector) IsSelected(fullName string) bool {
	_, ok := s.selected[fullName]
	return ok
}

// AllSelected is true iff every node of the tree is selected. An empty tree
// is never all selected.
func (s *CategorySelector) AllSelected() bool {
	return s.allSelected
}

// Selected returns the selection in sorted order
func (s *CategorySelector) Selected() []string {
	out := make([]string, 0, len(s.selected))
	for n := range s.selected {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Roots returns the tree the selector operates on
func (s *CategorySelector) Roots() []CategoryTreeNode {
	return s.roots
}

// refresh recomputes the derived all-selected flag after every mutation
func (s *CategorySelector) refresh() {
	if len(s.all) == 0 {
		s.allSelected = false
		return
	}
	for _, n := range s.all {
		if _, ok := s.selected[n]; !ok {
			s.allSelected = false
			return
		}
	}
	s.allSelected = true
}

// DefaultBeverageKeywords is the keyword list used when none is configured
var DefaultBeverageKeywords = []string{
	"beverage", "drink", "wine", "beer", "cocktail", "spirit", "liquor",
	"liqueur", "coffee", "tea", "juice", "soda", "cider", "sake",
}

// BeverageClassifier decides whether a menu category holds beverages. A
// keyword matches whole words of the category name, case-insensitively,
// with an optional plural "s" or "es" on its last word: "tea" matches
// "Iced Teas" but not "Steaks".
type BeverageClassifier struct {
	Keywords []string
}

func NewBeverageClassifier(keywords []string) BeverageClassifier {
	if len(keywords) == 0 {
		keywords = DefaultBeverageKeywords
	}
	lower := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.Join(nameWords(k), " "); k != "" {
			lower = append(lower, k)
		}
	}
	return BeverageClassifier{Keywords: lower}
}

func (c BeverageClassifier) IsBeverage(categoryName string) bool {
	words := nameWords(categoryName)
	for _, k := range c.Keywords {
		if containsPhrase(words, strings.Fields(k)) {
			return true
		}
	}
	return false
}

// nameWords lowercases s and splits it on anything that is not a letter or digit
func nameWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 {
		return false
	}
	last := len(phrase) - 1
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, p := range phrase {
			w := words[i+j]
			if w == p || (j == last && (w == p+"s" || w == p+"es")) {
				continue
			}
			match = false
			break
		}
		if match {
			return true
		}
	}
	return false
}

// SplitMenuCategories partitions menu roots into food and beverage trees.
// Classification is by root name; a root's subtree goes with it.
func SplitMenuCategories(roots []CategoryTreeNode, c BeverageClassifier) (food, beverage []CategoryTreeNode) {
	for _, r := range roots {
		if c.IsBeverage(r.Name) {
			beverage = append(beverage, r)
		} else {
			food = append(food, r)
		}
	}
	return food, beverage
}

// MenuCategorySelection keeps two independent selectors for a menu sourced
// bank: one over food categories and one over beverage categories.
type MenuCategorySelection struct {
	Food     *CategorySelector
	Beverage *CategorySelector
}

// NewMenuCategorySelection splits roots with c and distributes selected
// between the two selectors.
func NewMenuCategorySelection(roots []CategoryTreeNode, c BeverageClassifier, selected []string) *MenuCategorySelection {
	food, beverage := SplitMenuCategories(roots, c)
	return &MenuCategorySelection{
		Food:     NewCategorySelector(food, selected),
		Beverage: NewCategorySelector(beverage, selected),
	}
}

// HasBeverages reports whether the menu has any beverage categories
func (m *MenuCategorySelection) HasBeverages() bool {
	return len(m.Beverage.all) > 0
}

// Categories returns the union of both selections, sorted
func (m *MenuCategorySelection) Categories() []string {
	out := append(m.Food.Selected(), m.Beverage.Selected()...)
	sort.Strings(out)
	return out
}

func intersect(names, universe []string) []string {
	in := make(map[string]bool, len(universe))
	for _, u := range universe {
		in[u] = true
	}
	var out []string
	for _, n := range names {
		if in[n] {
			out = append(out, n)
		}
	}
	return out
}
