package envelope

import "errors"

var errNotUTF8 = errors.New("decoded data is not valid UTF-8")
