package odpsw

type MapReducable interface {
	Map() Reducable
}

type Reducable interface {
	Reduce()
}

/*
MapReduce implements a streaming map-reduce operation.

A heavy task may be splitted into Map() and Reduce(), where Map() would be
processed concurrently, and Reduce() must be done in serial, in the order the
works arrived. Executing one packet per work keeps output files in input order.

argument "workers" specifies the concurrency of Map() phase.
*/
func MapReduce(works <-chan MapReducable, workers int) {
	if workers < 1 {
		workers = 1
	}
	serials := make(chan chan Reducable, workers)
	go func() {
		for work := range works {
			serial := make(chan Reducable, 1)
			serials <- serial
			go func() {
				serial <- work.Map()
			}()
		}
		close(serials)
	}()
	for serial := range serials {
		r := <-serial
		r.Reduce()
	}
}
