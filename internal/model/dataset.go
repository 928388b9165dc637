package model

// Dataset is the ordered, document_link-keyed collection of records.
// The zero value is an empty dataset.
type Dataset struct {
	records []ExtractedRecord
	index   map[string]int
}

// NewDataset builds a dataset from rows. When rows repeat a key the later
// row replaces the earlier one in place.
func NewDataset(rows []ExtractedRecord) *Dataset {
	ds := &Dataset{}
	for _, r := range rows {
		ds.Upsert(r)
	}
	return ds
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// Records returns a copy of the records in dataset order.
func (d *Dataset) Records() []ExtractedRecord {
	if d == nil {
		return nil
	}
	out := make([]ExtractedRecord, len(d.records))
	copy(out, d.records)
	return out
}

// Get looks up a record by document link.
func (d *Dataset) Get(link string) (ExtractedRecord, bool) {
	if d == nil || d.index == nil {
		return ExtractedRecord{}, false
	}
	i, ok := d.index[link]
	if !ok {
		return ExtractedRecord{}, false
	}
	return d.records[i], true
}

// Upsert appends r, or replaces the record with the same key. It reports
// whether the key was new.
func (d *Dataset) Upsert(r ExtractedRecord) bool {
	if d.index == nil {
		d.index = make(map[string]int)
	}
	if i, ok := d.index[r.DocumentLink]; ok {
		d.records[i] = r
		return false
	}
	d.index[r.DocumentLink] = len(d.records)
	d.records = append(d.records, r)
	return true
}

// Clone returns an independent copy.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return &Dataset{}
	}
	return NewDataset(d.records)
}
