package sungrow_modbus

// MaxReadCount is the largest register count of a single Modbus read request.
const MaxReadCount uint16 = 125

// ReadRange is one contiguous read and the variables it was planned for.
type ReadRange struct {
	Register  RegisterKind
	Start     uint16
	Count     uint16
	Variables []*VariableDefinition
}

func (r ReadRange) End() uint32 {
	return uint32(r.Start) + uint32(r.Count)
}

// Covers reports whether every register of d lies inside the range.
func (r ReadRange) Covers(d *VariableDefinition) bool {
	return d.Register == r.Register && d.Address >= r.Start && d.End() <= r.End()
}

func (r ReadRange) slice(regs []uint16, d *VariableDefinition) []uint16 {
	from := int(d.Address - r.Start)
	return regs[from : from+int(d.Count)]
}

// PlanReads coalesces variables into the fewest reads. Two variables of the same register
// kind share a read when at most maxGap unused registers separate them and the merged
// read stays within maxCount registers.
func PlanReads(defs []*VariableDefinition, maxGap uint16, maxCount uint16) []ReadRange {
	if maxCount == 0 || maxCount > MaxReadCount {
		maxCount = MaxReadCount
	}
	sorted := append([]*VariableDefinition(nil), defs...)
	sortByAddress(sorted)

	var ranges []ReadRange
	for _, d := range sorted {
		if n := len(ranges); n > 0 {
			cur := &ranges[n-1]
			if cur.Register == d.Register && uint32(d.Address) <= cur.End()+uint32(maxGap) {
				end := max(cur.End(), d.End())
				if end-uint32(cur.Start) <= uint32(maxCount) {
					cur.Count = uint16(end - uint32(cur.Start))
					cur.Variables = append(cur.Variables, d)
					continue
				}
			}
		}
		ranges = append(ranges, ReadRange{
			Register:  d.Register,
			Start:     d.Address,
			Count:     d.Count,
			Variables: []*VariableDefinition{d},
		})
	}
	return ranges
}
