package models

type Tier struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	MinPoints  int      `json:"min_points"`
	MaxPoints  *int     `json:"max_points"`
	Multiplier float64  `json:"multiplier"`
	Benefits   []string `json:"benefits"`
}

type TierProgress struct {
	Current      Tier    `json:"current"`
	Next         *Tier   `json:"next"`
	Percent      float64 `json:"percent"`
	PointsToNext int     `json:"points_to_next"`
}
