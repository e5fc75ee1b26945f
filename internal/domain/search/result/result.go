package result

// Hit is a single ranked passage.
type Hit struct {
	passageID    int64
	sourceFileID int64
	content      string
	similarity   float64
}

// New creates a search hit.
func New(passageID, sourceFileID int64, content string, similarity float64) Hit {
	return Hit{
		passageID:    passageID,
		sourceFileID: sourceFileID,
		content:      content,
		similarity:   similarity,
	}
}

// PassageID returns the passage identifier.
func (h *Hit) PassageID() int64 { return h.passageID }

// SourceFileID returns the owning source file.
func (h *Hit) SourceFileID() int64 { return h.sourceFileID }

// Content returns the passage text.
func (h *Hit) Content() string { return h.content }

// Similarity returns 1 - cosine distance.
func (h *Hit) Similarity() float64 { return h.similarity }

// Less orders hits by descending similarity, then ascending passage id.
func Less(a, b Hit) bool {
	if a.similarity != b.similarity {
		return a.similarity > b.similarity
	}
	return a.passageID < b.passageID
}
