package ability

// Book is a combatant's known abilities with their cooldowns and levels.
// A missing cooldown entry means 0 (ready); a missing level entry means 1.
//
// Invariant: every Cooldowns value is >= 0; every Levels value is >= 1.
type Book struct {
	Known     []ID       `json:"known"`
	Cooldowns map[ID]int `json:"cooldowns"`
	Levels    map[ID]int `json:"levels"`
}

// NewBook returns a Book knowing ids, all ready and at level 1.
func NewBook(ids ...ID) *Book {
	b := &Book{Cooldowns: make(map[ID]int), Levels: make(map[ID]int)}
	for _, id := range ids {
		b.Learn(id)
	}
	return b
}

// Learn adds id to the known list if absent.
func (b *Book) Learn(id ID) {
	if !b.Knows(id) {
		b.Known = append(b.Known, id)
	}
}

// Knows reports whether id has been learned.
func (b *Book) Knows(id ID) bool {
	for _, k := range b.Known {
		if k == id {
			return true
		}
	}
	return false
}

// Cooldown returns turns remaining before id is ready; absent means 0.
func (b *Book) Cooldown(id ID) int {
	return b.Cooldowns[id]
}

// SetCooldown records turns remaining for id, flooring at 0. A zero value
// deletes the entry.
func (b *Book) SetCooldown(id ID, turns int) {
	if turns <= 0 {
		delete(b.Cooldowns, id)
		return
	}
	if b.Cooldowns == nil {
		b.Cooldowns = make(map[ID]int)
	}
	b.Cooldowns[id] = turns
}

// Level returns id's level; absent means 1.
func (b *Book) Level(id ID) int {
	if lv, ok := b.Levels[id]; ok && lv >= 1 {
		return lv
	}
	return 1
}

// SetLevel records id's level, flooring at 1.
func (b *Book) SetLevel(id ID, level int) {
	if b.Levels == nil {
		b.Levels = make(map[ID]int)
	}
	b.Levels[id] = max(1, level)
}

// TickCooldowns lowers every cooldown by exactly one and returns the
// abilities that became ready.
//
// Postcondition: no cooldown is negative.
func (b *Book) TickCooldowns() []ID {
	var ready []ID
	for _, id := range b.Known {
		cd, ok := b.Cooldowns[id]
		if !ok {
			continue
		}
		if cd-1 <= 0 {
			delete(b.Cooldowns, id)
			ready = append(ready, id)
			continue
		}
		b.Cooldowns[id] = cd - 1
	}
	return ready
}
