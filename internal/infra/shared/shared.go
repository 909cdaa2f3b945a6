// Package shared — небольшие общие утилиты без внешних зависимостей.
package shared

import "math/rand/v2"

// Random возвращает псевдослучайное целое в диапазоне [fromMin, toMax] включительно.
// Если fromMin >= toMax, возвращается fromMin. Используется math/rand/v2; криптостойкость
// не требуется, поэтому пометка #nosec G404 осознанна.
func Random(fromMin, toMax int) int {
	if fromMin >= toMax {
		return fromMin
	}
	// Смещение на +fromMin после IntN(toMax-fromMin+1) даёт включительный верхний предел.
	return rand.IntN(toMax-fromMin+1) + fromMin // #nosec G404
}
