package formatter

import (
	"strconv"
	"strings"
	"time"
)

// Strftime exposes the package's POSIX-subset strftime expansion for
// callers outside this package that need to format a path template
// against a concrete time without going through a Formatter (the
// Chunker's chunk_path_template, for one).
func Strftime(layout string, t time.Time) string {
	return strftime(layout, t)
}

// strftime implements the small subset of POSIX strftime codes the path
// templates in this package actually use. Go's time package has no direct
// equivalent (its reference-layout scheme can't be driven by a
// runtime-supplied template string), so this translates codes one at a
// time the way Python's time.strftime would.
func strftime(layout string, t time.Time) string {
	var b strings.Builder
	for i := 0; i < len(layout); i++ {
		c := layout[i]
		if c != '%' || i == len(layout)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch layout[i] {
		case 'Y':
			b.WriteString(strconv.Itoa(t.Year()))
		case 'm':
			b.WriteString(pad2(int(t.Month())))
		case 'd':
			b.WriteString(pad2(t.Day()))
		case 'H':
			b.WriteString(pad2(t.Hour()))
		case 'M':
			b.WriteString(pad2(t.Minute()))
		case 'S':
			b.WriteString(pad2(t.Second()))
		case 'a':
			b.WriteString(t.Format("Mon"))
		case 'A':
			b.WriteString(t.Format("Monday"))
		case 'b':
			b.WriteString(t.Format("Jan"))
		case 'B':
			b.WriteString(t.Format("January"))
		case 'Z':
			b.WriteString("GMT")
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(layout[i])
		}
	}
	return b.String()
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
