package fixed

var (
	Zero = Point{}
	One  = FromInt64(1, 0)
	Cent = FromInt64(1, 2)
)
