package domain

// Metadata describes the page of a paginated listing.
type Metadata struct {
	CurrentPage  int
	FirstPage    int
	LastPage     int
	PageSize     int
	TotalRecords int
}

func NewMetadata(totalRecords, page, pageSize int) *Metadata {
	lastPage := 1
	if pageSize > 0 && totalRecords > 0 {
		lastPage = (totalRecords + pageSize - 1) / pageSize
	}

	return &Metadata{
		CurrentPage:  page,
		FirstPage:    1,
		LastPage:     lastPage,
		PageSize:     pageSize,
		TotalRecords: totalRecords,
	}
}

func (m *Metadata) HasNextPage() bool {
	return m.CurrentPage < m.LastPage
}
