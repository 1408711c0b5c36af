// Command nedelev serves and queries terrain heights from USGS NED GridFloat
// tiles.
package main

func main() {
	Execute()
}
