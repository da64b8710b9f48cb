package catalog

// Item is a transient copy of one catalog product. The catalog service owns
// the record; the job engine holds it only while processing.
type Item struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	BodyHTML string    `json:"body_html"`
	Tags     string    `json:"tags"`
	Variants []Variant `json:"variants"`
	Images   []Image   `json:"images"`
}

// Variant carries the price and up to three option strings.
type Variant struct {
	ID      int64   `json:"id"`
	Price   float64 `json:"price,string"`
	Option1 string  `json:"option1,omitempty"`
	Option2 string  `json:"option2,omitempty"`
	Option3 string  `json:"option3,omitempty"`
}

// Image is one asset owned by an item. Src points at the image CDN, which is
// a different host from the admin API.
type Image struct {
	ID  int64  `json:"id"`
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// Page is one slice of the paginated item listing. An empty NextCursor means
// the provider reported no further page.
type Page struct {
	Items      []Item
	NextCursor string
}
