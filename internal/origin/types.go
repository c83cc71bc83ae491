package origin

import "github.com/animanga/mangapipe/internal/models"

// Wire types for the origin API. Every payload wraps its data in a
// "response" key; missing keys decode to zero values and are treated
// as empty results, never as crashes.

type searchResponse struct {
	Response      []seriesJSON `json:"response"`
	PageNavParams pageNav      `json:"pageNavParams"`
}

type seriesDetailResponse struct {
	Response *seriesJSON `json:"response"`
}

type chapterResponse struct {
	Response *struct {
		Pages struct {
			List []pageJSON `json:"list"`
		} `json:"pages"`
	} `json:"response"`
}

type pageJSON struct {
	Img string `json:"img"`
}

type pageNav struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Count int `json:"count"`
}

type seriesJSON struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Russian     string  `json:"russian"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	Kind        string  `json:"kind"`
	Status      string  `json:"status"`
	Chapters    int     `json:"chapters"`
	Image       struct {
		Original string `json:"original"`
	} `json:"image"`
	AiredOn struct {
		Year int `json:"year"`
	} `json:"aired_on"`
	Genres []struct {
		Text string `json:"text"`
	} `json:"genres"`
}

func (s *seriesJSON) toMetadata() *models.SeriesMetadata {
	m := &models.SeriesMetadata{
		ID:           s.ID,
		Title:        s.Russian,
		TitleEnglish: s.Name,
		Description:  s.Description,
		CoverURL:     s.Image.Original,
		Rating:       s.Score,
		Year:         s.AiredOn.Year,
		Kind:         s.Kind,
		ChapterCount: s.Chapters,
	}
	switch s.Status {
	case "ongoing":
		m.Status = models.StatusOngoing
	case "released":
		m.Status = models.StatusReleased
	default:
		m.Status = models.StatusUnknown
	}
	for _, g := range s.Genres {
		m.Genres = append(m.Genres, g.Text)
	}
	return m
}
