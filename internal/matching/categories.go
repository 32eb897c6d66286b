// Package matching implements the vendor matching and assignment engine:
// category normalization, per-provider statistics aggregation, weighted
// scoring, ranking with a fallback path, and the auto-assign orchestration.
package matching

import "github.com/Le520407/swift-fix-pro-sub002/internal/model"

// acceptableCategories maps a job category to the provider categories that may
// serve it. Every entry ends with the general fallback so the candidate query
// always has a usable filter.
var acceptableCategories = map[model.Category][]model.Category{
	model.CategoryPlumbing:   {model.CategoryPlumbing, model.CategoryGeneral},
	model.CategoryElectrical: {model.CategoryElectrical, model.CategoryGeneral},
	model.CategoryCarpentry:  {model.CategoryCarpentry, model.CategoryGeneral},
	model.CategoryPainting:   {model.CategoryPainting, model.CategoryGeneral},
	model.CategoryCleaning:   {model.CategoryCleaning, model.CategoryGeneral},
	model.CategoryHVAC:       {model.CategoryHVAC, model.CategoryElectrical, model.CategoryGeneral},
	model.CategoryAppliance:  {model.CategoryAppliance, model.CategoryElectrical, model.CategoryGeneral},
	model.CategoryGardening:  {model.CategoryGardening, model.CategoryGeneral},
	model.CategoryRoofing:    {model.CategoryRoofing, model.CategoryCarpentry, model.CategoryGeneral},
	model.CategoryGeneral:    {model.CategoryGeneral},
}

// FindAcceptableCategories returns the ordered set of provider categories that
// may serve the given job category. Unknown categories fall back to the
// general list; the result is never empty.
func FindAcceptableCategories(jobCategory model.Category) []model.Category {
	if cats, ok := acceptableCategories[jobCategory]; ok {
		out := make([]model.Category, len(cats))
		copy(out, cats)
		return out
	}
	return []model.Category{model.CategoryGeneral}
}
