package ingest

import "fmt"

// Blocks maps pipeline stages (blocks) to the tables belonging to them.
// A table belongs to exactly one block; ingestion rejects input that says
// otherwise. Blocks whose steps close a declared pipeline are terminal.
type Blocks struct {
	order    []string
	tables   map[string][]string
	owner    map[string]string
	terminal []string
	isTerm   map[string]bool
}

func newBlocks() *Blocks {
	return &Blocks{
		tables: make(map[string][]string),
		owner:  make(map[string]string),
		isTerm: make(map[string]bool),
	}
}

// assign records table as a member of block. Repeated identical assignments
// are no-ops; a conflicting assignment is an invariant violation.
func (b *Blocks) assign(block, table string) error {
	if prev, ok := b.owner[table]; ok {
		if prev != block {
			return fmt.Errorf("table %q belongs to block %q and cannot also join block %q", table, prev, block)
		}
		return nil
	}
	if _, ok := b.tables[block]; !ok {
		b.order = append(b.order, block)
	}
	b.owner[table] = block
	b.tables[block] = append(b.tables[block], table)
	return nil
}

// markTerminal flags block as the final stage of some pipeline declaration.
func (b *Blocks) markTerminal(block string) {
	if b.isTerm[block] {
		return
	}
	b.isTerm[block] = true
	b.terminal = append(b.terminal, block)
}

// Names returns all block names in first-seen order.
func (b *Blocks) Names() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// TablesOf returns the tables of a block in first-seen order.
func (b *Blocks) TablesOf(block string) []string {
	tables := b.tables[block]
	out := make([]string, len(tables))
	copy(out, tables)
	return out
}

// BlockOf returns the owning block of a table.
func (b *Blocks) BlockOf(table string) (string, bool) {
	block, ok := b.owner[table]
	return block, ok
}

// Terminal returns the terminal blocks in the order they were flagged.
func (b *Blocks) Terminal() []string {
	out := make([]string, len(b.terminal))
	copy(out, b.terminal)
	return out
}

// IsTerminal reports whether block closes some pipeline.
func (b *Blocks) IsTerminal(block string) bool {
	return b.isTerm[block]
}
