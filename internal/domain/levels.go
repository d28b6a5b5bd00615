package domain

// Level is one rung of the citizen progression ladder.
type Level struct {
	Number    int    `json:"nivel"`
	Name      string `json:"nombre"`
	MinPoints int    `json:"puntos_minimos"`
}

var Levels = []Level{
	{Number: 1, Name: "Semilla", MinPoints: 0},
	{Number: 2, Name: "Brote", MinPoints: 100},
	{Number: 3, Name: "Arbusto", MinPoints: 250},
	{Number: 4, Name: "Árbol", MinPoints: 500},
	{Number: 5, Name: "Bosque", MinPoints: 1000},
	{Number: 6, Name: "Guardián", MinPoints: 2000},
}

// LevelFor returns the highest level whose threshold is <= points.
func LevelFor(points int) Level {
	lvl := Levels[0]
	for _, l := range Levels {
		if points >= l.MinPoints {
			lvl = l
		}
	}
	return lvl
}

// NextLevel returns the level after current, or false at the top.
func NextLevel(current int) (Level, bool) {
	for _, l := range Levels {
		if l.Number == current+1 {
			return l, true
		}
	}
	return Level{}, false
}
