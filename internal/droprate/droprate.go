package droprate

// Pattern is the distinct-item count per rarity tier observed for one game's
// cosmetic drop category.
type Pattern struct {
	Common   int
	Uncommon int
	Rare     int
}

// defaultTable holds the empirical probability of receiving a common item
// per rarity pattern, fitted from a sample of 1,189 observed craft outcomes.
// The values are point-in-time constants; refreshing them requires new
// observations, not code changes.
var defaultTable = map[Pattern]float64{
	{Common: 1, Uncommon: 1, Rare: 1}: 0.6480,
	{Common: 2, Uncommon: 1, Rare: 1}: 0.7854,
	{Common: 3, Uncommon: 1, Rare: 1}: 0.8406,
	{Common: 1, Uncommon: 2, Rare: 1}: 0.5618,
	{Common: 2, Uncommon: 2, Rare: 1}: 0.7026,
	{Common: 3, Uncommon: 2, Rare: 1}: 0.7764,
	{Common: 1, Uncommon: 1, Rare: 2}: 0.5741,
	{Common: 2, Uncommon: 2, Rare: 2}: 0.6672,
}

// ClampProportion clamps x into [0, 1].
func ClampProportion(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Estimator answers "how likely is a crafted cosmetic drop to be common".
type Estimator struct {
	table map[Pattern]float64
}

// NewEstimator builds an estimator from the given table (nil for the
// built-in one). Every entry is clamped into [0, 1] at load time.
func NewEstimator(table map[Pattern]float64) *Estimator {
	if table == nil {
		table = defaultTable
	}
	clamped := make(map[Pattern]float64, len(table))
	for p, v := range table {
		clamped[p] = ClampProportion(v)
	}
	return &Estimator{table: clamped}
}

// CommonProbability returns P(common | pattern). Patterns absent from the
// table default to 1: assume a common item is certain. That is conservative
// for the seller and risky for the buyer, and is kept that way on purpose.
func (e *Estimator) CommonProbability(p Pattern) float64 {
	if v, ok := e.table[p]; ok {
		return v
	}
	return 1
}
