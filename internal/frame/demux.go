package frame

// Demux splits a flat body of sample words into ordered per-channel arrays.
//
// Main channels are interleaved round-robin: sample i of channel c sits at
// body[i*mainChannels+c]. The 10-channel DAQ is the exception: it transmits
// two interleaved sub-groups back to back, six channels then four. Tacho
// channels are never interleaved; each occupies a contiguous block after
// the main-channel region ("frequency" first, then "trigger"). The
// asymmetry is a property of the DAQ firmware framing and is reproduced
// here exactly.
func Demux(body []uint16, mainChannels, tachoChannels, samplesPerChannel int) [][]float64 {
	channels := make([][]float64, 0, mainChannels+tachoChannels)

	mainWords := mainChannels * samplesPerChannel
	switch mainChannels {
	case 10:
		channels = append(channels, roundRobin(body[:6*samplesPerChannel], 6, samplesPerChannel)...)
		channels = append(channels, roundRobin(body[6*samplesPerChannel:mainWords], 4, samplesPerChannel)...)
	default:
		channels = append(channels, roundRobin(body[:mainWords], mainChannels, samplesPerChannel)...)
	}

	for t := 0; t < tachoChannels; t++ {
		start := mainWords + t*samplesPerChannel
		block := make([]float64, samplesPerChannel)
		for i, w := range body[start : start+samplesPerChannel] {
			block[i] = float64(w)
		}
		channels = append(channels, block)
	}

	return channels
}

// roundRobin de-interleaves count channels from words.
func roundRobin(words []uint16, count, samplesPerChannel int) [][]float64 {
	channels := make([][]float64, count)
	for c := range channels {
		channels[c] = make([]float64, samplesPerChannel)
	}
	for i, w := range words {
		channels[i%count][i/count] = float64(w)
	}
	return channels
}
