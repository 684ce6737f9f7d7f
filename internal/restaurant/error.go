package restaurant

import "errors"

var ErrRestaurantNotFound = errors.New("restaurant not found")
