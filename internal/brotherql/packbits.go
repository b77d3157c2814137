package brotherql

// PackBits compresses data with the TIFF PackBits scheme used for raster lines.
func PackBits(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/128+1)
	i := 0
	for i < len(data) {
		j := i + 1
		for j < len(data) && data[j] == data[i] && j-i < 128 {
			j++
		}
		if n := j - i; n >= 2 {
			out = append(out, byte(257-n), data[i])
			i = j
			continue
		}

		// 次の繰り返しが始まるまでをリテラルとして出す
		j = i
		for j < len(data) && j-i < 128 {
			if j+1 < len(data) && data[j] == data[j+1] {
				break
			}
			j++
		}
		out = append(out, byte(j-i-1))
		out = append(out, data[i:j]...)
		i = j
	}
	return out
}
