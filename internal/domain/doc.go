// Package domain models administrative regions with wild-bird capture counts
// and the local spatial statistics computed over them.
//
// # Data Source
//
// Regions come from the Irish administrative areas dataset (county and city
// councils) published as GeoJSON in the Irish Grid projection (EPSG:29902).
// Each feature has been joined upstream with per-region capture counts from
// the avian influenza surveillance records: total birds captured and the
// number that tested positive for H5 HPAI.
//
// # Region Conventions
//
// Property names:
//
//	Raw source:  OBJECTID, ENGLISH, COUNTY, CONTAE
//	Renamed:     id,       council, county, gaeilge
//	Counts:      total_birds, infected_birds, healthy_birds
//
// Names are title-cased on load ("DUN LAOGHAIRE-RATHDOWN" → "Dun
// Laoghaire-Rathdown"). healthy_birds is always total_birds - infected_birds.
//
// Proportions:
//
//	prop_infected = infected_birds / total_birds   when total_birds > 0
//	prop_infected = 0                              when total_birds == 0
//
// A region with no captures is a legal observation with value 0, not missing
// data.
//
// # Neighbours
//
// Contiguity follows the Queen criterion: two regions are neighbours when
// their boundaries share at least one point, whether a full edge or a single
// vertex. The relation is symmetric and never reflexive. Regions without
// neighbours ("islands") stay in the analysis; offshore councils are the usual
// case.
//
// # Getis-Ord G*
//
// For attribute values x_1..x_n and binary weights w_ij where the star variant
// sets w_ii = 1, the local sum of region i is
//
//	L_i = Σ_j w_ij x_j
//
// With W_i = Σ_j w_ij (neighbour count plus one), x̄ the mean and s² the
// population variance of x, the null moments under random relabelling are
//
//	E[L_i]   = W_i x̄
//	Var[L_i] = s² W_i (n - W_i) / (n - 1)
//
// and z_i = (L_i - E[L_i]) / sqrt(Var[L_i]). This is the same quantity the
// ratio form G*_i = L_i / Σx standardises to. When Var[L_i] is zero (uniform
// values, or a region that neighbours everything) z_i is defined as 0.
//
// p-values are pseudo p-values from conditional permutation: x_i stays at
// region i and its W_i - 1 neighbour slots are refilled at random from the
// other n - 1 values. With P permutations every p-value is a multiple of
// 1/(P+1).
//
// # Classification
//
//	p ≥ α          → not significant
//	p < α, z > 0   → hot spot
//	p < α, z < 0   → cold spot
//	p < α, z == 0  → not significant
//
// Labels are derived from a [LocalStat] and never stored on [Region].
package domain
