package texture

// DropMaxResolution lowers the budget ceiling by up to n mips and returns the
// bytes freed. At least one mip above MinAllowedMips is always left so the
// ceiling can recover; when the ceiling cannot move a single mip is dropped
// instead.
func (r *Record) DropMaxResolution(n int) int64 {
	if r.Asset == nil {
		return 0
	}
	n = min(r.BudgetMaxMips-r.MinAllowedMips-1, n)
	if n <= 0 {
		return r.DropOneMip()
	}
	r.BudgetMaxMips -= n
	r.BudgetMipBias += n
	if r.BudgetedMips <= r.BudgetMaxMips {
		return 0
	}
	freed := r.Size(r.BudgetedMips) - r.Size(r.BudgetMaxMips)
	r.BudgetedMips = r.BudgetMaxMips
	return freed
}

// DropOneMip removes one budgeted mip and returns the bytes freed.
func (r *Record) DropOneMip() int64 {
	if r.Asset == nil || r.BudgetedMips <= r.MinAllowedMips {
		return 0
	}
	r.BudgetedMips--
	return r.Size(r.BudgetedMips+1) - r.Size(r.BudgetedMips)
}

// KeepOneMip grants back one already resident mip and returns the bytes it costs.
func (r *Record) KeepOneMip() int64 {
	if r.Asset == nil || r.BudgetedMips >= min(r.ResidentMips, r.BudgetMaxMips) {
		return 0
	}
	r.BudgetedMips++
	return r.Size(r.BudgetedMips) - r.Size(r.BudgetedMips-1)
}
