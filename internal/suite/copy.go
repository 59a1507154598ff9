package suite

// Travel planner UI copy (ja-JP).
// These are isolated here because the app's wording changes often.
// Update these when the built-in suite starts failing on a heading.

const (
	// Planner step headings
	HeadingInitialChoice = "行き先は 決まっていますか？"
	HeadingRegion        = "どんな旅行に行きたいですか？"
	HeadingMustVisit     = "絶対に行きたい"
	HeadingCompanions    = "誰との旅ですか？"
	HeadingThemes        = "どんな旅にしますか？"
	HeadingBudget        = "予算はどれくらい？"
	HeadingDates         = "いつ、どれくらい？"
	HeadingPace          = "旅のペースは？"
	HeadingFreeText      = "最後に、 特別なご要望は？"

	// Planner choices
	ButtonUndecided = "決まっていない"
	ButtonDomestic  = "国内"
	ButtonNone      = "ない"
	ButtonSolo      = "一人"
	ButtonRelax     = "リラックス"
	ButtonStandard  = "普通"
	ButtonRelaxed   = "ゆったり"
	ButtonNext      = "次へ"
	ButtonCreate    = "プランを作成する"
	CheckboxUnset   = "未定"

	// Shown while the itinerary is generated
	TextLoading = "ガイドブックを開いています..."

	// Travel-info pages
	HeadingTravelInfo = "渡航情報・安全ガイド"
	TextTravelInfoFor = "の渡航情報"
)

// Page paths
const (
	PathHome       = "/"
	PathTravelInfo = "/travel-info"
)

// Local storage set before every document so the cookie banner stays hidden.
const (
	ConsentStorageKey   = "cookie_consent_accepted"
	ConsentStorageValue = "true"
)

// Travel-info categories, in the order the app lists them
var TravelInfoCategories = []string{
	"basic",
	"safety",
	"climate",
	"visa",
	"manner",
	"transport",
	"local_food",
	"souvenir",
	"events",
}
