package reflection

// Default term lists for the deterministic checks. Deployments override
// them through Config; these defaults match the agency's service catalog.

// defaultForbiddenServiceTerms name offerings the agency does not sell. A
// draft may only mention one if a tool output mentioned it first.
var defaultForbiddenServiceTerms = []string{
	"free trial",
	"money-back guarantee",
	"24/7 support",
	"lifetime warranty",
	"same-day turnaround",
	"unlimited revisions",
}

// defaultBrandVocabulary lists filler words the brand voice avoids.
var defaultBrandVocabulary = []string{
	"basically",
	"honestly",
	"literally",
	"obviously",
	"kinda",
	"gonna",
	"stuff",
}

var defaultPricingTerms = []string{
	"price",
	"pricing",
	"cost",
	"costs",
	"plan",
	"plans",
	"rate",
	"rates",
	"fee",
	"fees",
}

var defaultContactTerms = []string{
	"consultation",
	"contact",
	"book",
	"schedule",
	"call",
	"reach out",
	"get in touch",
}
