package directory

import "sort"

// Selection is page-scoped: every refetch, including page changes, clears
// it, and soft-deleted rows are never selectable.

// ToggleSelect flips one row's selection. Rows not on the current page and
// soft-deleted rows are ignored.
func (c *ListController) ToggleSelect(id string) {
	c.mu.Lock()
	row, ok := c.rowLocked(id)
	if !ok || row.IsDeleted() {
		c.mu.Unlock()
		return
	}
	if _, selected := c.selection[id]; selected {
		delete(c.selection, id)
	} else {
		c.selection[id] = struct{}{}
	}
	c.mu.Unlock()
	c.notify()
}

// ToggleAll flips between no selection and every non-deleted row on the
// current page.
func (c *ListController) ToggleAll() {
	c.mu.Lock()
	selectable := 0
	for _, row := range c.rows {
		if !row.IsDeleted() {
			selectable++
		}
	}
	if len(c.selection) == selectable && selectable > 0 {
		c.selection = make(map[string]struct{})
	} else {
		c.selection = make(map[string]struct{}, selectable)
		for _, row := range c.rows {
			if !row.IsDeleted() {
				c.selection[row.ID] = struct{}{}
			}
		}
	}
	c.mu.Unlock()
	c.notify()
}

// ClearSelection empties the selection.
func (c *ListController) ClearSelection() {
	c.mu.Lock()
	c.selection = make(map[string]struct{})
	c.bulkDeleteStaged = false
	c.mu.Unlock()
	c.notify()
}

// IsSelected reports whether the row is selected.
func (c *ListController) IsSelected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.selection[id]
	return ok
}

// Selected returns the selected ids in stable order.
func (c *ListController) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedLocked()
}

// SelectionCount returns the number of selected rows.
func (c *ListController) SelectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.selection)
}

// BulkSetStatus applies the status to every selected row in one call, then
// clears the selection and refetches. On failure the selection is kept so
// the user can retry.
func (c *ListController) BulkSetStatus(status string) error {
	c.mu.Lock()
	ids := c.selectedLocked()
	c.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	if _, err := c.api.BulkStatus(c.ctx, ids, status); err != nil {
		return err
	}
	c.Reload()
	return nil
}

// RequestBulkDelete stages a bulk delete of the current selection pending
// confirmation, returning how many rows it would affect. An empty selection
// stages nothing.
func (c *ListController) RequestBulkDelete() int {
	c.mu.Lock()
	count := len(c.selection)
	c.bulkDeleteStaged = count > 0
	c.mu.Unlock()
	c.notify()
	return count
}

// BulkDeletePending reports whether a bulk delete awaits confirmation.
func (c *ListController) BulkDeletePending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bulkDeleteStaged
}

// ConfirmBulkDelete issues exactly one bulk-delete call for the staged
// selection, then clears it and refetches.
func (c *ListController) ConfirmBulkDelete() error {
	c.mu.Lock()
	if !c.bulkDeleteStaged {
		c.mu.Unlock()
		return nil
	}
	ids := c.selectedLocked()
	c.bulkDeleteStaged = false
	c.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	if _, err := c.api.BulkDelete(c.ctx, ids); err != nil {
		return err
	}
	c.Reload()
	return nil
}

// CancelBulkDelete discards the staged bulk delete, keeping the selection.
func (c *ListController) CancelBulkDelete() {
	c.mu.Lock()
	c.bulkDeleteStaged = false
	c.mu.Unlock()
	c.notify()
}

func (c *ListController) rowLocked(id string) (Student, bool) {
	for _, row := range c.rows {
		if row.ID == id {
			return row, true
		}
	}
	return Student{}, false
}

func (c *ListController) selectedLocked() []string {
	ids := make([]string, 0, len(c.selection))
	for id := range c.selection {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
