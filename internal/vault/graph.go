package vault

// noteGraph is an in-memory view of one vault's notes used for link and
// hierarchy traversal over a snapshot loaded from a backing store.
type noteGraph struct {
	notes   []Note
	byID    map[string]*Note
	byTitle map[string]*Note
}

func newNoteGraph(notes []Note) *noteGraph {
	g := &noteGraph{
		notes:   notes,
		byID:    make(map[string]*Note, len(notes)),
		byTitle: make(map[string]*Note, len(notes)),
	}
	for i := range notes {
		n := &notes[i]
		g.byID[n.ID] = n
		g.byTitle[n.Title] = n
	}
	return g
}

// resolve maps a link token target to a note id, matching by id first and
// then by title.
func (g *noteGraph) resolve(target string) string {
	if _, ok := g.byID[target]; ok {
		return target
	}
	if n, ok := g.byTitle[target]; ok {
		return n.ID
	}
	return ""
}

func (g *noteGraph) outgoing(noteID string) []Link {
	n := g.byID[noteID]
	if n == nil {
		return nil
	}
	var links []Link
	for _, tok := range ParseLinkTokens(n.Content) {
		target := g.resolve(tok.Target)
		if target == "" {
			continue
		}
		links = append(links, Link{SourceID: noteID, TargetID: target, Alias: tok.Alias})
	}
	return links
}

func (g *noteGraph) backlinks(noteID string) []Link {
	var links []Link
	for i := range g.notes {
		src := &g.notes[i]
		if src.ID == noteID {
			continue
		}
		for _, tok := range ParseLinkTokens(src.Content) {
			if g.resolve(tok.Target) == noteID {
				links = append(links, Link{SourceID: src.ID, TargetID: noteID, Alias: tok.Alias})
			}
		}
	}
	return links
}

func (g *noteGraph) descendants(noteID string) []Note {
	var out []Note
	frontier := []string{noteID}
	for len(frontier) > 0 {
		next := frontier[:0:0]
		for _, id := range frontier {
			for i := range g.notes {
				if g.notes[i].ParentID == id {
					out = append(out, g.notes[i])
					next = append(next, g.notes[i].ID)
				}
			}
		}
		frontier = next
	}
	return out
}

// related returns the notes directly connected to the given note by a link
// in either direction.
func (g *noteGraph) related(noteID string) []Note {
	seen := map[string]bool{noteID: true}
	var notes []Note
	for _, l := range g.outgoing(noteID) {
		if !seen[l.TargetID] {
			seen[l.TargetID] = true
			notes = append(notes, *g.byID[l.TargetID])
		}
	}
	for _, l := range g.backlinks(noteID) {
		if !seen[l.SourceID] {
			seen[l.SourceID] = true
			notes = append(notes, *g.byID[l.SourceID])
		}
	}
	return notes
}

// findPath finds the shortest undirected link path between two notes and
// returns it as a sequence of note ids, endpoints included.
func (g *noteGraph) findPath(fromID, toID string) ([]string, error) {
	if fromID == toID {
		return []string{fromID}, nil
	}

	prev := map[string]string{fromID: ""}
	queue := []string{fromID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		var neighbors []string
		for _, l := range g.outgoing(cur) {
			neighbors = append(neighbors, l.TargetID)
		}
		for _, l := range g.backlinks(cur) {
			neighbors = append(neighbors, l.SourceID)
		}

		for _, next := range neighbors {
			if _, visited := prev[next]; visited {
				continue
			}
			prev[next] = cur
			if next == toID {
				var path []string
				for at := toID; at != ""; at = prev[at] {
					path = append([]string{at}, path...)
				}
				return path, nil
			}
			queue = append(queue, next)
		}
	}
	return nil, ErrNoPath
}
