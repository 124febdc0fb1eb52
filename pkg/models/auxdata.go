package models

// DataItem is a single named reading inside an aux-data record, with an
// optional unit of measure.
type DataItem struct {
	Name  string `json:"data_name"`
	Value string `json:"data_value"`
	UOM   string `json:"data_uom,omitempty"`
}

// EventAuxData is structured supplementary data attached to an event,
// grouped by the data source that produced it. At most one record exists
// per (event, data source) pair when written through the upsert path.
type EventAuxData struct {
	ID         string     `json:"id"`
	EventID    string     `json:"event_id"`
	DataSource string     `json:"data_source"`
	DataArray  []DataItem `json:"data_array"`
}

// Item returns the first data item with the given name and whether it exists.
func (a *EventAuxData) Item(name string) (DataItem, bool) {
	for _, item := range a.DataArray {
		if item.Name == name {
			return item, true
		}
	}
	return DataItem{}, false
}
