package workflows

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/randalmurphal/careflow/pkg/careflow/config"
)

// Doctor is one directory entry.
type Doctor struct {
	Name            string   `json:"name"`
	Specialties     []string `json:"specialties"`
	City            string   `json:"city"`
	Rating          float64  `json:"rating"`
	YearsExperience int      `json:"years_experience,omitempty"`
	Languages       []string `json:"languages,omitempty"`
	ConsultationFee int      `json:"consultation_fee,omitempty"`
}

// Directory finds doctors.
type Directory interface {
	// Search returns doctors practicing any of specialties in city with at
	// least minRating, best rated first.
	Search(ctx context.Context, specialties []string, city string, minRating float64) ([]Doctor, error)
}

// StaticDirectory searches a fixed list.
type StaticDirectory []Doctor

// Search implements Directory.
func (d StaticDirectory) Search(ctx context.Context, specialties []string, city string, minRating float64) ([]Doctor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Doctor
	for _, doc := range d {
		if !strings.EqualFold(doc.City, city) || doc.Rating < minRating {
			continue
		}
		if len(specialties) > 0 && !practices(doc, specialties) {
			continue
		}
		out = append(out, doc)
	}
	slices.SortStableFunc(out, func(a, b Doctor) int { return cmp.Compare(b.Rating, a.Rating) })
	return out, nil
}

func practices(doc Doctor, specialties []string) bool {
	for _, want := range specialties {
		for _, have := range doc.Specialties {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

// DirectoryFromConfig builds a StaticDirectory from a "doctors" list:
//
//	doctors:
//	  - name: Dr. Asha Rao
//	    specialties: [Panchakarma, General Ayurveda]
//	    city: Delhi
//	    rating: 4.7
func DirectoryFromConfig(entries []config.Config) (StaticDirectory, error) {
	dir := make(StaticDirectory, 0, len(entries))
	for i, e := range entries {
		doc := Doctor{
			Name:            e.String("name", ""),
			Specialties:     e.StringSlice("specialties", nil),
			City:            e.String("city", ""),
			Rating:          e.Float("rating", 0),
			YearsExperience: e.Int("years_experience", 0),
			Languages:       e.StringSlice("languages", nil),
			ConsultationFee: e.Int("consultation_fee", 0),
		}
		if doc.Name == "" || doc.City == "" {
			return nil, fmt.Errorf("doctors[%d]: name and city are required", i)
		}
		dir = append(dir, doc)
	}
	return dir, nil
}
