package position

// State is the single long position a backtest carries between bars. The
// zero value is flat.
type State struct {
	InPosition bool    `json:"in_position"`
	EntryPrice float64 `json:"entry_price"`
}

// Open records an entry at price.
func (s *State) Open(price float64) {
	s.InPosition = true
	s.EntryPrice = price
}

// Close exits at price and returns the trade return.
func (s *State) Close(price float64) float64 {
	r := s.Return(price)
	*s = State{}
	return r
}

// Return is the unrealized return at price, or 0 when flat.
func (s State) Return(price float64) float64 {
	if !s.InPosition || s.EntryPrice == 0 {
		return 0
	}
	return price/s.EntryPrice - 1
}
